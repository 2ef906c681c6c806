package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vpbank/passpointd/anqp/decoder"
	"github.com/vpbank/passpointd/models"
)

// Request outcomes.
const (
	outcomeAdmitted   = "admitted"
	outcomeSuppressed = "suppressed"
	outcomeFailed     = "failed"
)

// Response outcomes.
const (
	outcomeDelivered   = "delivered"
	outcomeUnsolicited = "unsolicited"
)

// Element outcomes.
const (
	outcomeDecoded   = "decoded"
	outcomeMalformed = "malformed"
	outcomeUnknown   = "unknown"
)

// Metrics holds the handler's Prometheus meters.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Responses      *prometheus.CounterVec
	Elements       *prometheus.CounterVec
	PendingExpired prometheus.Counter
	Pending        prometheus.Gauge
}

// NewMetrics creates the handler meters and registers them with reg. A nil
// reg leaves the meters unregistered; they still count.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpointd_anqp_requests_total",
			Help: "ANQP requests by admission outcome.",
		}, []string{"outcome"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpointd_anqp_responses_total",
			Help: "ANQP responses by delivery outcome.",
		}, []string{"outcome"}),
		Elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passpointd_anqp_elements_total",
			Help: "ANQP elements seen in responses by element and decode outcome.",
		}, []string{"element", "outcome"}),
		PendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passpointd_anqp_pending_expired_total",
			Help: "Pending requests dropped because no response arrived in time.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "passpointd_anqp_pending_requests",
			Help: "Requests awaiting a response.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Responses, m.Elements, m.PendingExpired, m.Pending)
	}
	return m
}

// observeDecode counts one outcome per element in payload.
func (m *Metrics) observeDecode(payload models.RawAnqpPayload, err error) {
	failed := make(map[models.ElementType]string)
	for _, pe := range decoder.ParseErrors(err) {
		if !decoder.Supported(pe.Element) {
			failed[pe.Element] = outcomeUnknown
		} else {
			failed[pe.Element] = outcomeMalformed
		}
	}
	for id := range payload {
		outcome, ok := failed[id]
		if !ok {
			outcome = outcomeDecoded
		}
		name := id.String()
		if outcome == outcomeUnknown {
			name = "unknown"
		}
		m.Elements.WithLabelValues(name, outcome).Inc()
	}
}
