package event

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/storefront/internal/engine"
)

// MetricsNotifier counts signals by kind and operation.
type MetricsNotifier struct {
	signals *prometheus.CounterVec
}

// NewMetricsNotifier registers the signal counter with reg.
func NewMetricsNotifier(reg prometheus.Registerer) *MetricsNotifier {
	signals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_signals_total",
			Help: "Total number of cart signals emitted, by kind and operation",
		},
		[]string{"kind", "operation"},
	)
	reg.MustRegister(signals)
	return &MetricsNotifier{signals: signals}
}

// Notify implements engine.Notifier.
func (m *MetricsNotifier) Notify(_ context.Context, s engine.Signal) {
	m.signals.WithLabelValues(string(s.Kind), s.Operation).Inc()
}
