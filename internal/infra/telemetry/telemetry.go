package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector exported by the service.
const Namespace = "identity"

// Register adds collector to reg. When an equivalent collector is already registered it is
// returned instead, so handlers and services can be rebuilt against one registry.
func Register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// IdentityMetrics counts identity operations by outcome.
type IdentityMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewIdentityMetrics registers the identity outcome counter with reg.
func NewIdentityMetrics(reg prometheus.Registerer) (*IdentityMetrics, error) {
	outcomes, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "accounts",
		Name:      "operations_total",
		Help:      "Identity operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &IdentityMetrics{outcomes: outcomes}, nil
}

// Observe counts one operation.
func (m *IdentityMetrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(operation, outcome).Inc()
}

// Outcomes exposes the underlying counter.
func (m *IdentityMetrics) Outcomes() *prometheus.CounterVec {
	return m.outcomes
}
