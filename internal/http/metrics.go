package http

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the API surface.
type Metrics struct {
	// Question flow
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram

	// Quota enforcement
	QuotaRejections *prometheus.CounterVec

	// Document lifecycle
	DocumentsRegistered prometheus.Counter
}

// NewMetrics creates and registers the API metrics.
//
// sync.Once guards registration so repeated server construction (tests,
// restarts within one process) cannot panic on duplicate collectors.
//
// Metrics:
//   - knowledged_queries_total{scope} - Questions answered, by search scope
//   - knowledged_query_duration_seconds - End-to-end question latency
//   - knowledged_quota_rejections_total{kind} - Rejections by quota kind
//   - knowledged_documents_registered_total - Document uploads admitted
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			QueriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knowledged_queries_total",
					Help: "Total number of questions answered",
				},
				[]string{"scope"}, // "organization", "private" or "all"
			),

			QueryDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "knowledged_query_duration_seconds",
					Help:    "End-to-end question latency in seconds",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
			),

			QuotaRejections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "knowledged_quota_rejections_total",
					Help: "Total number of requests rejected by quota enforcement",
				},
				[]string{"kind"}, // "user_daily", "org_daily", "document_count", "member_count"
			),

			DocumentsRegistered: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "knowledged_documents_registered_total",
					Help: "Total number of document uploads admitted",
				},
			),
		}
	})
	return globalMetrics
}
