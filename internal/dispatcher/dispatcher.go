// Package dispatcher distributes pending items across the active proxy pool.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/averres/proxyfan/internal/fetch"
	"github.com/averres/proxyfan/internal/metrics"
	"github.com/averres/proxyfan/internal/proxy"
	"github.com/averres/proxyfan/internal/queue"
)

// Dispatcher runs synchronized rounds of concurrent fetch attempts until
// the pending queue drains or no active proxy remains.
type Dispatcher struct {
	pool   []*proxy.Proxy
	logger *zap.Logger
}

// New creates a Dispatcher over the given pool.
func New(pool []*proxy.Proxy, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pool:   pool,
		logger: logger,
	}
}

type attempt struct {
	proxy *proxy.Proxy
	item  string
}

// Run drains items through the pool. It returns nil once every item has
// been durably recorded, fetch.ErrNoActiveProxies when the pool collapses
// with work still pending, or the first fatal error a round produced.
func (d *Dispatcher) Run(ctx context.Context, items []string) error {
	pending := queue.New(items)
	// Tracks items that are in flight or completed. A requeued transient
	// failure is removed again so it stays eligible for retry; duplicate
	// input lines are coalesced here.
	attempted := make(map[string]struct{})

	for round := 0; pending.Len() > 0; round++ {
		active := d.activeProxies()
		metrics.SetActiveProxies(len(active))
		if len(active) == 0 {
			d.logger.Error("proxy pool exhausted",
				zap.Int("round", round),
				zap.Int("pending", pending.Len()),
			)
			return fetch.ErrNoActiveProxies
		}

		batch := d.takeBatch(pending, active, attempted)
		if len(batch) == 0 {
			// Every popped item was a coalesced duplicate.
			continue
		}

		d.logger.Debug("dispatching round",
			zap.Int("round", round),
			zap.Int("attempts", len(batch)),
			zap.Int("active_proxies", len(active)),
		)

		start := time.Now()
		outcomes := make([]fetch.Outcome, len(batch))
		var g errgroup.Group
		for i, a := range batch {
			i, a := i, a
			g.Go(func() error {
				outcome, err := a.proxy.Attempt(ctx, a.item)
				if err != nil {
					return err
				}
				outcomes[i] = outcome
				return nil
			})
		}
		// The round always joins before any queue or pool mutation; a
		// fatal attempt does not cancel its in-flight siblings.
		err := g.Wait()
		metrics.ObserveRound(time.Since(start))
		if err != nil {
			return err
		}

		for i := len(outcomes) - 1; i >= 0; i-- {
			if !outcomes[i].Retry {
				continue
			}
			pending.PushFront(outcomes[i].Item)
			delete(attempted, outcomes[i].Item)
			metrics.ObserveItemRequeued()
		}
	}
	return nil
}

// takeBatch pops up to each proxy's concurrency limit from the queue front,
// skipping items already marked attempted.
func (d *Dispatcher) takeBatch(
	pending *queue.Deque,
	active []*proxy.Proxy,
	attempted map[string]struct{},
) []attempt {
	var batch []attempt
	for _, p := range active {
		for taken := 0; taken < p.Limit(); taken++ {
			item, ok := pending.PopFront()
			if !ok {
				return batch
			}
			if _, seen := attempted[item]; seen {
				continue
			}
			attempted[item] = struct{}{}
			batch = append(batch, attempt{proxy: p, item: item})
		}
	}
	return batch
}

func (d *Dispatcher) activeProxies() []*proxy.Proxy {
	active := make([]*proxy.Proxy, 0, len(d.pool))
	for _, p := range d.pool {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}
