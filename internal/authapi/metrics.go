package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Metrics exposes auth API call outcomes and breaker state.
type Metrics struct {
	breakerState *prometheus.GaugeVec
	calls        *prometheus.CounterVec
}

// Call outcomes.
const (
	outcomeOK      = "ok"
	outcomeRemote  = "remote_error"
	outcomeNetwork = "network_error"
)

// NewMetrics creates collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "drivepass_auth_api_breaker_state",
				Help: "Current state of the auth API circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivepass_auth_api_calls_total",
				Help: "Auth API calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.breakerState, m.calls)
	}
	return m
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) setState(name string, st gobreaker.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(stateToFloat(st))
}

// stateToFloat maps gobreaker states to gauge values.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
