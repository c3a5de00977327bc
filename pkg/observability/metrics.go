package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/knot/pkg/domain"
)

// Metrics counts knot lifecycle events with Prometheus collectors.
type Metrics struct {
	ties    prometheus.Counter
	unties  prometheus.Counter
	active  prometheus.Gauge
	changes *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "ties_total",
			Help:      "Number of knots tied.",
		}),
		unties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "unties_total",
			Help:      "Number of knots untied.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knot",
			Name:      "active",
			Help:      "Knots currently tied.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "changes_total",
			Help:      "Values propagated across knots.",
		}, []string{"direction"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "errors_total",
			Help:      "Diagnostics raised while tying or propagating.",
		}, []string{"fatal"}),
	}

	for _, c := range []prometheus.Collector{m.ties, m.unties, m.active, m.changes, m.errors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns the lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTie: func(context.Context, *domain.KnotEvent) {
			m.ties.Inc()
			m.active.Inc()
		},
		OnUntie: func(context.Context, *domain.KnotEvent) {
			m.unties.Inc()
			m.active.Dec()
		},
		OnChange: func(_ context.Context, e *domain.ChangeEvent) {
			m.changes.WithLabelValues(string(e.Direction)).Inc()
		},
		OnError: func(_ context.Context, e *domain.ErrorEvent) {
			m.errors.WithLabelValues(strconv.FormatBool(e.Fatal)).Inc()
		},
	}
}
