package issuance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks UIN issuance and reconciliation health.
type Metrics struct {
	issued             prometheus.Counter
	collisions         prometheus.Counter
	obligationsQueued  prometheus.Counter
	obligationsSettled prometheus.Counter
	obligationsFailed  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		issued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_uins_issued_total",
			Help: "Total UINs successfully minted.",
		}),
		collisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_uin_collisions_total",
			Help: "Candidate UINs discarded because they were already registered.",
		}),
		obligationsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_issuance_obligations_queued_total",
			Help: "Holder writes deferred to the reconciler after approval.",
		}),
		obligationsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_issuance_obligations_settled_total",
			Help: "Deferred holder writes completed by the reconciler.",
		}),
		obligationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civid_issuance_obligation_attempts_failed_total",
			Help: "Reconciler attempts that failed and will be retried.",
		}),
	}
}

func (m *Metrics) RecordIssued()            { m.issued.Inc() }
func (m *Metrics) RecordCollision()         { m.collisions.Inc() }
func (m *Metrics) RecordObligationQueued()  { m.obligationsQueued.Inc() }
func (m *Metrics) RecordObligationSettled() { m.obligationsSettled.Inc() }
func (m *Metrics) RecordObligationFailed()  { m.obligationsFailed.Inc() }
