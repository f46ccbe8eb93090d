// Package proxy implements the per-endpoint fetch worker.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/averres/proxyfan/internal/fetch"
	"github.com/averres/proxyfan/internal/metrics"
)

// Config controls Proxy behavior.
type Config struct {
	Address         string
	Concurrency     int
	RetireThreshold int
	RunID           string
	Topic           string
	ArchivePrefix   string
}

// Proxy wraps one endpoint: it caps in-flight requests, performs single-item
// fetches, and tracks consecutive transient failures until retirement.
type Proxy struct {
	fetcher   fetch.Fetcher
	sink      fetch.Sink
	archive   fetch.Archive
	publisher fetch.Publisher
	hasher    fetch.Hasher
	clock     fetch.Clock
	cfg       Config
	logger    *zap.Logger

	sem *semaphore.Weighted

	mu                sync.Mutex
	transientFailures int
	active            bool
}

// New constructs a Proxy. Archive, publisher and hasher are optional.
func New(
	fetcher fetch.Fetcher,
	sink fetch.Sink,
	archive fetch.Archive,
	publisher fetch.Publisher,
	hasher fetch.Hasher,
	clock fetch.Clock,
	cfg Config,
	logger *zap.Logger,
) *Proxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetireThreshold <= 0 {
		cfg.RetireThreshold = 10
	}
	return &Proxy{
		fetcher:   fetcher,
		sink:      sink,
		archive:   archive,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		active:    true,
	}
}

// Address returns the proxy base URL.
func (p *Proxy) Address() string {
	return p.cfg.Address
}

// Limit returns the per-proxy concurrency cap.
func (p *Proxy) Limit() int {
	return p.cfg.Concurrency
}

// Active reports whether the proxy may still receive work.
func (p *Proxy) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Retire permanently removes the proxy from future dispatch rounds.
// The transition is terminal and is never reversed.
func (p *Proxy) Retire() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.mu.Unlock()

	metrics.ObserveProxyRetired()
	p.logger.Error("proxy retired", zap.String("proxy", p.cfg.Address))
	p.publishEvent(map[string]any{
		"run_id":    p.cfg.RunID,
		"event":     "proxy_retired",
		"proxy":     p.cfg.Address,
		"timestamp": p.now().Format(time.RFC3339),
	})
}

// Attempt fetches one item. A nil error carries the classified Outcome:
// success (already durably appended to the sink) or transient retry.
// A non-nil error is fatal for the whole job.
func (p *Proxy) Attempt(ctx context.Context, item string) (fetch.Outcome, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fetch.Outcome{}, fmt.Errorf("acquire slot on %s: %w", p.cfg.Address, err)
	}
	defer p.sem.Release(1)

	resp, err := p.fetcher.Fetch(ctx, fetch.Request{BaseURL: p.cfg.Address, Item: item})
	if err != nil {
		return fetch.Outcome{}, fmt.Errorf("fetch %q via %s: %w", item, p.cfg.Address, err)
	}
	metrics.ObserveFetch(p.cfg.Address, resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK:
		return p.recordSuccess(ctx, item, resp)
	case http.StatusServiceUnavailable:
		failures := p.noteTransientFailure()
		p.logger.Warn("transient failure",
			zap.String("proxy", p.cfg.Address),
			zap.String("item", item),
			zap.Int("consecutive_failures", failures),
		)
		return fetch.Outcome{Item: item, Retry: true}, nil
	default:
		return fetch.Outcome{}, &fetch.UnexpectedStatusError{
			Proxy:      p.cfg.Address,
			Item:       item,
			StatusCode: resp.StatusCode,
		}
	}
}

func (p *Proxy) recordSuccess(ctx context.Context, item string, resp fetch.Response) (fetch.Outcome, error) {
	var payload struct {
		Information string `json:"information"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return fetch.Outcome{}, fmt.Errorf("decode response for %q from %s: %w", item, p.cfg.Address, err)
	}

	record := fetch.Record{
		RunID:       p.cfg.RunID,
		Item:        item,
		Information: payload.Information,
		Proxy:       p.cfg.Address,
		RetrievedAt: p.now(),
	}
	// The append must be durable before success is reported.
	if err := p.sink.Append(ctx, record); err != nil {
		return fetch.Outcome{}, fmt.Errorf("append record for %q: %w", item, err)
	}

	p.resetFailures()
	metrics.ObserveItemFetched()
	p.archiveBody(ctx, item, resp.Body)
	p.publishEvent(map[string]any{
		"run_id":    p.cfg.RunID,
		"event":     "item_fetched",
		"item":      item,
		"proxy":     p.cfg.Address,
		"timestamp": record.RetrievedAt.Format(time.RFC3339),
	})

	p.logger.Debug("information recorded",
		zap.String("proxy", p.cfg.Address),
		zap.String("item", item),
		zap.Duration("duration", resp.Duration),
	)
	return fetch.Outcome{Item: item, Information: payload.Information}, nil
}

func (p *Proxy) noteTransientFailure() int {
	p.mu.Lock()
	p.transientFailures++
	failures := p.transientFailures
	retire := p.active && failures >= p.cfg.RetireThreshold
	p.mu.Unlock()

	if retire {
		p.Retire()
	}
	return failures
}

func (p *Proxy) resetFailures() {
	p.mu.Lock()
	p.transientFailures = 0
	p.mu.Unlock()
}

func (p *Proxy) archiveBody(ctx context.Context, item string, body []byte) {
	if p.archive == nil || p.hasher == nil {
		return
	}
	digest, err := p.hasher.Hash([]byte(item))
	if err != nil {
		p.logger.Warn("archive key hash failed", zap.String("item", item), zap.Error(err))
		return
	}
	uri, err := p.archive.Put(ctx, p.buildArchiveKey(digest), body)
	if err != nil {
		p.logger.Warn("archive write failed", zap.String("item", item), zap.Error(err))
		return
	}
	p.logger.Debug("raw body archived", zap.String("item", item), zap.String("uri", uri))
}

func (p *Proxy) buildArchiveKey(digest string) string {
	prefix := strings.Trim(p.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.json", p.cfg.RunID, digest)
	}
	return fmt.Sprintf("%s/%s/%s.json", prefix, p.cfg.RunID, digest)
}

func (p *Proxy) publishEvent(payload map[string]any) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
		p.logger.Warn("event publish failed", zap.Error(err))
	}
}

func (p *Proxy) now() time.Time {
	if p.clock == nil {
		return time.Now().UTC()
	}
	return p.clock.Now()
}
