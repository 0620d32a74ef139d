// Package observability carries the SDK's metrics, tracing, and the
// fire-and-forget telemetry collaborator the event channel reports lifecycle
// events to.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Channel metrics
	channelConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passage_channel_connects_total",
			Help: "Total number of event channel connect attempts",
		},
		[]string{"result"},
	)

	channelConnectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "passage_channel_connect_duration_seconds",
			Help:    "Event channel handshake duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	channelDisconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passage_channel_disconnects_total",
			Help: "Total number of event channel disconnects",
		},
		[]string{"reason"},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passage_frames_total",
			Help: "Total number of inbound frames by event name",
		},
		[]string{"event"},
	)

	// Session metrics
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passage_callbacks_total",
			Help: "Total number of host callback invocations",
		},
		[]string{"callback"},
	)

	channelActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "passage_channel_active",
			Help: "Whether an event channel is currently active (0 or 1)",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the SDK's Prometheus metrics.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			channelConnectsTotal,
			channelConnectDuration,
			channelDisconnectsTotal,
			framesTotal,
			callbacksTotal,
			channelActive,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordConnect records one connect attempt outcome ("success", "failure",
// "timeout", "reused").
func RecordConnect(result string, duration time.Duration) {
	channelConnectsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		channelConnectDuration.Observe(duration.Seconds())
	}
}

// RecordDisconnect records a channel teardown by reason.
func RecordDisconnect(reason string) {
	channelDisconnectsTotal.WithLabelValues(reason).Inc()
}

// RecordFrame counts one inbound frame by event name.
func RecordFrame(event string) {
	framesTotal.WithLabelValues(event).Inc()
}

// RecordCallback counts one host callback invocation by kind.
func RecordCallback(callback string) {
	callbacksTotal.WithLabelValues(callback).Inc()
}

// SetChannelActive flips the active-channel gauge.
func SetChannelActive(active bool) {
	if active {
		channelActive.Set(1)
		return
	}
	channelActive.Set(0)
}
