// Package collyfetcher implements fetch.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/averres/proxyfan/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements fetch.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	// Collectors are synchronous by default; colly v2.1.0's Async option
	// ignores its argument and always enables async, so it must be omitted.
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// RequestURL builds the upstream URL for one item.
func RequestURL(baseURL, item string) string {
	return fmt.Sprintf("%s/api/data?input=%s", baseURL, url.QueryEscape(item))
}

// Fetch executes a single HTTP GET against {base}/api/data?input={item}.
// Any observed status code is returned in the Response; only transport
// failures surface as errors.
func (f *Fetcher) Fetch(ctx context.Context, request fetch.Request) (fetch.Response, error) {
	var (
		result   fetch.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(start, &result, &fetchErr)

	target := RequestURL(request.BaseURL, request.Item)
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fetch.Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return fetch.Response{}, fmt.Errorf("fetch %s: %w", target, fetchErr)
		}
		if result.StatusCode != 0 {
			// A status was observed; Visit's error for non-2xx codes only
			// mirrors it and classification belongs to the caller.
			return result, nil
		}
		if err != nil {
			return fetch.Response{}, fmt.Errorf("visit %s: %w", target, err)
		}
		return fetch.Response{}, fmt.Errorf("no response received from %s", request.BaseURL)
	}
}

func (f *Fetcher) buildCollector(
	start time.Time,
	result *fetch.Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		*result = fetch.Response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		// Colly routes non-2xx statuses here with the response attached.
		if r != nil && r.StatusCode != 0 {
			*result = fetch.Response{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
			return
		}
		*fetchErr = err
	})

	return collector
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
