// Package metrics provides Prometheus metrics for the terminal client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Command metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bettermux_commands_total",
			Help: "Total number of interpreted commands",
		},
		[]string{"command", "result"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bettermux_command_duration_seconds",
			Help:    "Command execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// Remote action metrics
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bettermux_remote_actions_total",
			Help: "Total number of file-system actions sent to the backend",
		},
		[]string{"action", "status"},
	)

	actionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bettermux_remote_action_duration_seconds",
			Help:    "File-system action round trip in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bettermux_remote_retries_total",
			Help: "Total number of retried backend requests",
		},
	)

	// Suggestion metrics
	suggestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bettermux_suggestions_total",
			Help: "Total number of suggestion requests",
		},
		[]string{"result"},
	)

	suggestionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bettermux_suggestion_latency_seconds",
			Help:    "Suggestion completion latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// Network test metrics
	networkTestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bettermux_network_tests_total",
			Help: "Total number of network quality tests",
		},
		[]string{"result"},
	)

	networkSpeedMbps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bettermux_network_speed_mbps",
			Help: "Last measured network speed in Mbps",
		},
		[]string{"direction"},
	)

	// Session metrics
	transcriptEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bettermux_transcript_entries",
			Help: "Number of entries in the session transcript",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bettermux_events_published_total",
			Help: "Total transcript events published to subscribers",
		},
		[]string{"type"},
	)

	eventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bettermux_event_subscribers",
			Help: "Number of active transcript subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCommand records one interpreted command.
func RecordCommand(command, result string, duration time.Duration) {
	commandsTotal.WithLabelValues(command, result).Inc()
	commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordAction records one backend action.
func RecordAction(action, status string, duration time.Duration) {
	actionsTotal.WithLabelValues(action, status).Inc()
	actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRetry records a retried backend request.
func RecordRetry() {
	retriesTotal.Inc()
}

// RecordSuggestion records a suggestion request outcome.
func RecordSuggestion(result string, duration time.Duration) {
	suggestionsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		suggestionLatency.Observe(duration.Seconds())
	}
}

// RecordNetworkTest records a finished network test.
func RecordNetworkTest(result string, downloadMbps, uploadMbps float64) {
	networkTestsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		networkSpeedMbps.WithLabelValues("download").Set(downloadMbps)
		networkSpeedMbps.WithLabelValues("upload").Set(uploadMbps)
	}
}

// SetTranscriptEntries sets the transcript size gauge.
func SetTranscriptEntries(n int) {
	transcriptEntries.Set(float64(n))
}

// RecordEvent records a published transcript event.
func RecordEvent(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// SetEventSubscribers sets the subscriber gauge.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}
