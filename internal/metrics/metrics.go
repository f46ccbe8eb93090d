// Package metrics exposes Prometheus collectors for the fetch engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal   *prometheus.CounterVec
	itemsFetchedTotal    prometheus.Counter
	itemsRequeuedTotal   prometheus.Counter
	proxiesActive        prometheus.Gauge
	proxiesRetiredTotal  prometheus.Counter
	roundDurationSeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyfan_fetch_requests_total",
				Help: "Total number of fetch attempts, labeled by proxy and status code.",
			},
			[]string{"proxy", "status"},
		)

		itemsFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxyfan_items_fetched_total",
				Help: "Total number of items durably recorded.",
			},
		)

		itemsRequeuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxyfan_items_requeued_total",
				Help: "Total number of items re-inserted at the queue front after a transient failure.",
			},
		)

		proxiesActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyfan_proxies_active",
				Help: "Number of proxies currently active in the pool.",
			},
		)

		proxiesRetiredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "proxyfan_proxies_retired_total",
				Help: "Total number of proxies retired after consecutive transient failures.",
			},
		)

		roundDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxyfan_round_duration_seconds",
				Help:    "Histogram of dispatch round latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the fetch attempt counter.
func ObserveFetch(proxy string, statusCode int) {
	if fetchRequestsTotal == nil {
		return
	}
	fetchRequestsTotal.WithLabelValues(proxy, strconv.Itoa(statusCode)).Inc()
}

// ObserveItemFetched increments the recorded-item counter.
func ObserveItemFetched() {
	if itemsFetchedTotal == nil {
		return
	}
	itemsFetchedTotal.Inc()
}

// ObserveItemRequeued increments the requeue counter.
func ObserveItemRequeued() {
	if itemsRequeuedTotal == nil {
		return
	}
	itemsRequeuedTotal.Inc()
}

// SetActiveProxies records the size of the active pool snapshot.
func SetActiveProxies(n int) {
	if proxiesActive == nil {
		return
	}
	proxiesActive.Set(float64(n))
}

// ObserveProxyRetired increments the retirement counter.
func ObserveProxyRetired() {
	if proxiesRetiredTotal == nil {
		return
	}
	proxiesRetiredTotal.Inc()
}

// ObserveRound records the duration of one dispatch round.
func ObserveRound(duration time.Duration) {
	if roundDurationSeconds == nil {
		return
	}
	roundDurationSeconds.Observe(duration.Seconds())
}
