// Package queue provides the pending-item deque consumed by the dispatcher.
package queue

// Deque is a FIFO queue of items with priority re-insertion at the front.
// It is only mutated between dispatch rounds and needs no locking.
type Deque struct {
	items []string
}

// New builds a Deque seeded with the given items in order.
func New(items []string) *Deque {
	d := &Deque{items: make([]string, len(items))}
	copy(d.items, items)
	return d
}

// Len reports the number of pending items.
func (d *Deque) Len() int {
	return len(d.items)
}

// PushBack appends an item at the tail.
func (d *Deque) PushBack(item string) {
	d.items = append(d.items, item)
}

// PushFront re-inserts an item ahead of all pending work.
func (d *Deque) PushFront(item string) {
	d.items = append([]string{item}, d.items...)
}

// PopFront removes and returns the head item. The second return is false
// when the deque is empty.
func (d *Deque) PopFront() (string, bool) {
	if len(d.items) == 0 {
		return "", false
	}
	item := d.items[0]
	d.items = d.items[1:]
	return item, true
}
