package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion, scraping and chat Prometheus metrics.
var (
	IngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion jobs by outcome",
		},
		[]string{"outcome"}, // indexed, duplicate, failed, timeout
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Ingestion job duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Content fetch duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat completions by status",
		},
		[]string{"model", "status"},
	)

	ChatToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_tool_calls_total",
			Help:      "Tool calls executed for the chat assistant",
		},
		[]string{"tool", "status"},
	)
)

var registerIngestOnce sync.Once

// RegisterIngestMetrics registers ingestion, scrape and chat metrics. Safe to call more than once.
func RegisterIngestMetrics() {
	registerIngestOnce.Do(func() {
		prometheus.MustRegister(IngestTotal, IngestDuration, ScrapeDuration, ChatRequestsTotal, ChatToolCallsTotal)
	})
}
