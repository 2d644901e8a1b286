package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeMalformed = "malformed"
	OutcomeNetwork   = "network_error"
	OutcomeNoToken   = "no_token"
)

// Metrics holds the Prometheus metrics of one session client
type Metrics struct {
	HandoffExchanges *prometheus.CounterVec
	Verifications    *prometheus.CounterVec
	Invalidations    prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg leaves them
// unregistered, which keeps tests free of global state.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HandoffExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_handoff_exchanges_total",
			Help: "Handoff code exchanges by outcome",
		}, []string{"outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_verifications_total",
			Help: "Session verifications by outcome",
		}, []string{"outcome"}),
		Invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "authsession_unauthorized_invalidations_total",
			Help: "Sessions cleared after a 401 from a protected endpoint",
		}),
	}
}

func (m *Metrics) ObserveExchange(outcome string) {
	if m == nil {
		return
	}
	m.HandoffExchanges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementInvalidations() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}
