package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification workflow.
type Metrics struct {
	// Decisions by outcome and result (applied, replayed, conflict, ...)
	Decisions *prometheus.CounterVec

	// Business sync attempts by result
	BusinessSyncs *prometheus.CounterVec

	// Listing latency by collection
	ListLatency *prometheus.HistogramVec

	// Reconciler runs by job and result
	ReconcileRuns *prometheus.CounterVec
}

// New registers the verification metrics on reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_verification_decisions_total",
			Help: "Credential review decisions by outcome and result",
		}, []string{"outcome", "result"}),

		BusinessSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_verification_business_syncs_total",
			Help: "Business verified-flag synchronizations by result",
		}, []string{"result"}), // result: "updated", "already_verified", "failed"

		ListLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_listing_duration_seconds",
			Help:    "Duration of paginated listing queries by collection",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"collection"}),

		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_verification_scheduler_runs_total",
			Help: "Scheduled verification job runs by job and result",
		}, []string{"job", "result"}),
	}
}

// IncrementDecision records a decision attempt.
func (m *Metrics) IncrementDecision(outcome, result string) {
	if m != nil {
		m.Decisions.WithLabelValues(outcome, result).Inc()
	}
}

// IncrementBusinessSync records a business flag synchronization.
func (m *Metrics) IncrementBusinessSync(result string) {
	if m != nil {
		m.BusinessSyncs.WithLabelValues(result).Inc()
	}
}

// ObserveListLatency records the duration of one listing call.
func (m *Metrics) ObserveListLatency(collection string, d time.Duration) {
	if m != nil {
		m.ListLatency.WithLabelValues(collection).Observe(d.Seconds())
	}
}

// IncrementSchedulerRun records one scheduled job execution.
func (m *Metrics) IncrementSchedulerRun(job, result string) {
	if m != nil {
		m.ReconcileRuns.WithLabelValues(job, result).Inc()
	}
}
