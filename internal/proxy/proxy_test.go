package proxy

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/averres/proxyfan/internal/fetch"
	"github.com/averres/proxyfan/internal/sink"
)

type stubFetcher struct {
	mu       sync.Mutex
	codes    []int
	calls    int
	err      error
	body     []byte
	inflight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (f *stubFetcher) Fetch(_ context.Context, _ fetch.Request) (fetch.Response, error) {
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return fetch.Response{}, f.err
	}
	code := f.codes[f.calls%len(f.codes)]
	f.calls++
	body := f.body
	if body == nil && code == http.StatusOK {
		body = []byte(`{"information": "data"}`)
	}
	return fetch.Response{StatusCode: code, Body: body}, nil
}

func newProxy(fetcher fetch.Fetcher, s fetch.Sink, cfg Config) *Proxy {
	return New(fetcher, s, nil, nil, nil, nil, cfg, zap.NewNop())
}

func TestAttemptSuccessAppendsBeforeReturning(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{codes: []int{http.StatusOK}}, s, Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 10, RunID: "run-1",
	})

	outcome, err := p.Attempt(context.Background(), "alpha")
	require.NoError(t, err)
	require.False(t, outcome.Retry)
	require.Equal(t, "data", outcome.Information)

	records := s.Records()
	require.Len(t, records, 1)
	require.Equal(t, "alpha", records[0].Item)
	require.Equal(t, "data", records[0].Information)
	require.Equal(t, "http://p1", records[0].Proxy)
	require.Equal(t, "run-1", records[0].RunID)
}

func TestAttemptTransientFailuresRetireAtThreshold(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{codes: []int{http.StatusServiceUnavailable}}, s, Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 3,
	})

	for i := 0; i < 2; i++ {
		outcome, err := p.Attempt(context.Background(), "alpha")
		require.NoError(t, err)
		require.True(t, outcome.Retry)
		require.True(t, p.Active(), "attempt %d should not retire", i+1)
	}

	outcome, err := p.Attempt(context.Background(), "alpha")
	require.NoError(t, err)
	require.True(t, outcome.Retry)
	require.False(t, p.Active(), "threshold-th failure must retire the proxy")
	require.Empty(t, s.Records())
}

func TestAttemptSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{codes: []int{
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
		http.StatusOK,
		http.StatusServiceUnavailable,
		http.StatusServiceUnavailable,
	}}, s, Config{Address: "http://p1", Concurrency: 1, RetireThreshold: 3})

	for i := 0; i < 5; i++ {
		_, err := p.Attempt(context.Background(), "alpha")
		require.NoError(t, err)
	}
	// Two failures, a success resetting the counter, then two more
	// failures: never reaches the threshold of three.
	require.True(t, p.Active())
}

func TestAttemptUnexpectedStatusIsFatal(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{codes: []int{http.StatusNotFound}}, s, Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 10,
	})

	_, err := p.Attempt(context.Background(), "alpha")
	var statusErr *fetch.UnexpectedStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.True(t, p.Active(), "fatal statuses do not retire the proxy")
}

func TestAttemptTransportErrorIsFatal(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{err: errors.New("connection reset")}, s, Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 10,
	})

	_, err := p.Attempt(context.Background(), "alpha")
	require.Error(t, err)
	require.Empty(t, s.Records())
}

func TestAttemptInvalidJSONIsFatal(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	p := newProxy(&stubFetcher{codes: []int{http.StatusOK}, body: []byte("not json")}, s, Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 10,
	})

	_, err := p.Attempt(context.Background(), "alpha")
	require.Error(t, err)
	require.Empty(t, s.Records())
}

func TestAttemptHonorsConcurrencyCap(t *testing.T) {
	t.Parallel()

	s := sink.NewMemorySink()
	fetcher := &stubFetcher{codes: []int{http.StatusOK}, delay: 20 * time.Millisecond}
	p := newProxy(fetcher, s, Config{Address: "http://p1", Concurrency: 3, RetireThreshold: 10})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Attempt(context.Background(), "alpha")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, fetcher.peak.Load(), int64(3))
}

func TestRetireIsTerminalAndIdempotent(t *testing.T) {
	t.Parallel()

	p := newProxy(&stubFetcher{codes: []int{http.StatusOK}}, sink.NewMemorySink(), Config{
		Address: "http://p1", Concurrency: 1, RetireThreshold: 10,
	})

	require.True(t, p.Active())
	p.Retire()
	require.False(t, p.Active())
	p.Retire()
	require.False(t, p.Active())
}

func TestAttemptArchivesAndPublishesOnSuccess(t *testing.T) {
	t.Parallel()

	archive := &memoryArchive{objects: map[string][]byte{}}
	publisher := &memoryPublisher{}
	s := sink.NewMemorySink()
	p := New(
		&stubFetcher{codes: []int{http.StatusOK}},
		s,
		archive,
		publisher,
		stubHasher{},
		nil,
		Config{
			Address:         "http://p1",
			Concurrency:     1,
			RetireThreshold: 10,
			RunID:           "run-9",
			Topic:           "events",
			ArchivePrefix:   "bodies",
		},
		zap.NewNop(),
	)

	_, err := p.Attempt(context.Background(), "alpha")
	require.NoError(t, err)

	require.Contains(t, archive.objects, "bodies/run-9/hash-alpha.json")
	require.Len(t, publisher.payloads, 1)
	require.Equal(t, "item_fetched", publisher.payloads[0]["event"])
}

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memoryArchive) Put(_ context.Context, key string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = append([]byte(nil), data...)
	return "memory://" + key, nil
}

type memoryPublisher struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (p *memoryPublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		p.payloads = append(p.payloads, m)
	}
	return "msg-1", nil
}

type stubHasher struct{}

func (stubHasher) Hash(data []byte) (string, error) {
	return "hash-" + string(data), nil
}
