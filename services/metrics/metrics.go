package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported by the service
var Registry = prometheus.NewRegistry()

var (
	QuoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticker_quote_requests_total",
			Help: "Quote source requests by result (ok, unavailable, throttled, breaker_open)",
		},
		[]string{"result"},
	)

	QuoteLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticker_quote_request_duration_seconds",
			Help:    "Latency of quote source requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticker_ticks_total",
			Help: "Scheduler ticks by phase executed (idle, broadcast, resolve)",
		},
		[]string{"phase"},
	)

	DigestSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticker_digest_symbols",
			Help: "Number of symbols present in the last broadcast digest",
		},
	)

	PredictionsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticker_predictions_submitted_total",
			Help: "Predictions stored, including overwrites",
		},
	)

	PredictionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticker_predictions_resolved_total",
			Help: "Prediction resolution outcomes per symbol (resolved, deferred)",
		},
		[]string{"outcome"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticker_messages_sent_total",
			Help: "Messages delivered to output channels by sink and result",
		},
		[]string{"sink", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		QuoteRequests,
		QuoteLatency,
		Ticks,
		DigestSymbols,
		PredictionsSubmitted,
		PredictionsResolved,
		MessagesSent,
	)
}

// Handler serves the registry in the prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
