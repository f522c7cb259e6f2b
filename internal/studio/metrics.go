package studio

import (
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records gateway and state-machine activity.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	outputs         *prometheus.CounterVec
}

// NewMetrics registers the studio collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdlc_studio",
			Name:      "gateway_requests_total",
			Help:      "Reasoning gateway attempts by provider, operation and outcome.",
		}, []string{"provider", "op", "outcome"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sdlc_studio",
			Name:      "gateway_request_duration_seconds",
			Help:      "Reasoning gateway attempt latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider", "op"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdlc_studio",
			Name:      "phase_transitions_total",
			Help:      "Conversation phase transitions by agent and target phase.",
		}, []string{"agent", "from", "to"}),
		outputs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdlc_studio",
			Name:      "agent_outputs_total",
			Help:      "Agent deliverables produced.",
		}, []string{"agent"}),
	}
}

// ObserveGatewayCall implements gateway.Observer.
func (m *Metrics) ObserveGatewayCall(provider, op, outcome string, elapsed time.Duration) {
	m.gatewayRequests.WithLabelValues(provider, op, outcome).Inc()
	m.gatewayLatency.WithLabelValues(provider, op).Observe(elapsed.Seconds())
}

// ObserveTransition implements conversation.TransitionObserver.
func (m *Metrics) ObserveTransition(agent domain.AgentID, from, to domain.Phase) {
	m.transitions.WithLabelValues(string(agent), string(from), string(to)).Inc()
	if to == domain.PhaseOutputReady {
		m.outputs.WithLabelValues(string(agent)).Inc()
	}
}
