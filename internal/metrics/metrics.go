// Package metrics holds the prometheus collectors for the sync engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxitrack_poll_ticks_total",
		Help: "Poll ticks that issued a feed fetch",
	})
	PollTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxitrack_poll_ticks_skipped_total",
		Help: "Poll ticks skipped because a fetch was still in flight",
	})
	FeedFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxitrack_feed_fetch_errors_total",
		Help: "Feed fetches that failed and were dropped",
	})
	FeedRecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxitrack_feed_records_dropped_total",
		Help: "Malformed position records dropped during decoding",
	})
	StaleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taxitrack_feed_stale_results_total",
		Help: "Fetch results discarded because scope changed or the loop stopped",
	})
	Merges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxitrack_merges_total",
		Help: "Merged feed refreshes by merge mode",
	}, []string{"mode"})
	RouteSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxitrack_route_submissions_total",
		Help: "Route submissions by result",
	}, []string{"result"})
	ScopeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxitrack_scope_transitions_total",
		Help: "Scope transitions by target state",
	}, []string{"to"})
	RendererClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taxitrack_renderer_clients",
		Help: "Connected renderer websocket clients",
	})
	FetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxitrack_feed_fetch_seconds",
		Help:    "Latency of feed fetches",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveFetchLatency(start time.Time) {
	FetchLatency.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
