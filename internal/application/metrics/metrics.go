// Package metrics exposes workflow engine instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks application workflow activity.
type Metrics struct {
	submissions     *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	stateConflicts  prometheus.Counter
	visionFailures  prometheus.Counter
	manualReviews   prometheus.Counter
	autoApprovals   prometheus.Counter
	reviewQueueSize prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civid_applications_submitted_total",
			Help: "Application submissions by kind (initial or resubmission).",
		}, []string{"kind"}),
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civid_application_decisions_total",
			Help: "Terminal review decisions by outcome.",
		}, []string{"outcome"}),
		stateConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_application_state_conflicts_total",
			Help: "Writes rejected because the application moved state concurrently.",
		}),
		visionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_vision_failures_total",
			Help: "Submissions where vision enrichment failed and degraded to manual review.",
		}),
		manualReviews: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_manual_review_flags_total",
			Help: "Submissions flagged for manual review.",
		}),
		autoApprovals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_auto_approvals_total",
			Help: "Applications approved automatically on confidence grounds.",
		}),
		reviewQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civid_review_queue_size",
			Help: "Pending applications awaiting review, sampled on queue reads.",
		}),
	}
}

func (m *Metrics) RecordSubmission(resubmission bool) {
	kind := "initial"
	if resubmission {
		kind = "resubmission"
	}
	m.submissions.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecision(outcome string) { m.decisions.WithLabelValues(outcome).Inc() }
func (m *Metrics) RecordStateConflict()          { m.stateConflicts.Inc() }
func (m *Metrics) RecordVisionFailure()          { m.visionFailures.Inc() }
func (m *Metrics) RecordManualReviewFlag()       { m.manualReviews.Inc() }
func (m *Metrics) RecordAutoApproval()           { m.autoApprovals.Inc() }
func (m *Metrics) SetReviewQueueSize(n int)      { m.reviewQueueSize.Set(float64(n)) }
