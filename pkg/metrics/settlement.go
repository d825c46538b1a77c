package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics is the audit emitter's counter surface: webhook volume
// and settlement failure counts.
type SettlementMetrics struct {
	webhooks          *prometheus.CounterVec
	releaseFailures   prometheus.Counter
	unrecordedRefunds prometheus.Counter
	discrepancies     *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement counters on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_received",
		Help: "Inbound gateway webhook notifications by mapped status.",
	}, []string{"status"})
	releaseFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_release_failures",
		Help: "Per-item inventory release failures skipped by the timeout sweep.",
	})
	unrecordedRefunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refunds_unrecorded",
		Help: "Refunds issued at the gateway but not recorded locally.",
	})
	discrepancies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_discrepancies",
		Help: "Settled payments classified as over- or underpaid.",
	}, []string{"classification"})
	reg.MustRegister(webhooks, releaseFailures, unrecordedRefunds, discrepancies)
	return &SettlementMetrics{
		webhooks:          webhooks,
		releaseFailures:   releaseFailures,
		unrecordedRefunds: unrecordedRefunds,
		discrepancies:     discrepancies,
	}
}

// IncWebhook counts one inbound webhook for the mapped status.
func (s *SettlementMetrics) IncWebhook(status string) {
	if s == nil || s.webhooks == nil {
		return
	}
	s.webhooks.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncReleaseFailure counts one skipped inventory release.
func (s *SettlementMetrics) IncReleaseFailure() {
	if s == nil || s.releaseFailures == nil {
		return
	}
	s.releaseFailures.Inc()
}

// IncUnrecordedRefund counts one refund that moved money without a local row.
func (s *SettlementMetrics) IncUnrecordedRefund() {
	if s == nil || s.unrecordedRefunds == nil {
		return
	}
	s.unrecordedRefunds.Inc()
}

// IncDiscrepancy counts one reconciliation mismatch.
func (s *SettlementMetrics) IncDiscrepancy(classification string) {
	if s == nil || s.discrepancies == nil {
		return
	}
	s.discrepancies.WithLabelValues(normalizeLabel(classification)).Inc()
}
