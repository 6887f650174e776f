package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the claim lifecycle counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	claimsSubmitted        *prometheus.CounterVec
	requestClaimsProcessed prometheus.Counter
	claimsRecorded         prometheus.Counter
	requestClaimsFlagged   prometheus.Counter
}

// NewMetrics registers the claim metrics with registry. A nil registry yields nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		return nil
	}
	factory := promauto.With(registry)
	return &Metrics{
		claimsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claim_service_claims_submitted_total",
			Help: "Total number of claim submissions by outcome",
		}, []string{"outcome"}),
		requestClaimsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "claim_service_request_claims_processed_total",
			Help: "Total number of request claims moved to PROCESSED",
		}),
		claimsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "claim_service_claims_recorded_total",
			Help: "Total number of finalized claims recorded from blockchain events",
		}),
		requestClaimsFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "claim_service_request_claims_flagged_total",
			Help: "Total number of pending request claims flagged for review",
		}),
	}
}

func (m *Metrics) claimSubmitted(outcome string) {
	if m == nil {
		return
	}
	m.claimsSubmitted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) requestClaimProcessed() {
	if m == nil {
		return
	}
	m.requestClaimsProcessed.Inc()
}

func (m *Metrics) claimRecorded() {
	if m == nil {
		return
	}
	m.claimsRecorded.Inc()
}

func (m *Metrics) requestClaimFlagged() {
	if m == nil {
		return
	}
	m.requestClaimsFlagged.Inc()
}
