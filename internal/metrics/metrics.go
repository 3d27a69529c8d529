// Package metrics declares the Prometheus collectors shared by the sync
// client and the remote server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultOffline   = "offline"
	ResultCoalesced = "coalesced"
)

// Client-side collectors.
var (
	PushOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slate_push_ops_total",
		Help: "Outbox entries replayed against the remote store, by entity type, action & result.",
	}, []string{"type", "action", "result"})
	PushPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slate_push_passes_total",
		Help: "Outbox drain passes, by result.",
	}, []string{"result"})
	PullCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slate_pull_cycles_total",
		Help: "Pull cycles, by result.",
	}, []string{"result"})
	PulledRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slate_pulled_records_total",
		Help: "Records applied to the local store by pulls, by entity type.",
	}, []string{"type"})
	OutboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slate_outbox_depth",
		Help: "Outbox entries remaining after the last push pass.",
	})
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slate_sync_duration_seconds",
		Help:    "Duration of push and pull passes in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"phase"})
)

// Server-side collectors.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slate_api_requests_total",
		Help: "HTTP requests served, by route, method & status code.",
	}, []string{"route", "method", "code"})
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slate_api_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route & method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	ChangeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slate_change_subscribers",
		Help: "Connected change-notification websocket clients.",
	})
	ChangesBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slate_changes_broadcast_total",
		Help: "Change events fanned out to subscribers.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
