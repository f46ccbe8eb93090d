package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDequeFIFOOrder(t *testing.T) {
	t.Parallel()

	d := New([]string{"a", "b", "c"})
	require.Equal(t, 3, d.Len())

	got := []string{}
	for {
		item, ok := d.PopFront()
		if !ok {
			break
		}
		got = append(got, item)
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.Zero(t, d.Len())
}

func TestDequePushFrontTakesPriority(t *testing.T) {
	t.Parallel()

	d := New([]string{"a", "b"})
	d.PushFront("failed")
	d.PushBack("tail")

	item, ok := d.PopFront()
	require.True(t, ok)
	require.Equal(t, "failed", item)

	item, _ = d.PopFront()
	require.Equal(t, "a", item)
	item, _ = d.PopFront()
	require.Equal(t, "b", item)
	item, _ = d.PopFront()
	require.Equal(t, "tail", item)
}

func TestDequePopEmpty(t *testing.T) {
	t.Parallel()

	d := New(nil)
	_, ok := d.PopFront()
	require.False(t, ok)
}

func TestDequeDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	src := []string{"a", "b"}
	d := New(src)
	src[0] = "mutated"

	item, _ := d.PopFront()
	require.Equal(t, "a", item)
}
