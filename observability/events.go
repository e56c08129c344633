package observability

import (
	"strings"
	"sync"

	"creditvault/core/events"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking engine events. The returned
// value is an events.Emitter and can be placed behind a journal.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "creditvault",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed engine events segmented by vault and type.",
			}, []string{"vault", "type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		eventType = "unknown"
	}
	vault := "none"
	if typed := events.Typed(evt); typed != nil {
		if v := typed.Attributes["vault"]; v != "" {
			vault = v
		}
	}
	m.emitted.WithLabelValues(vault, eventType).Inc()
}

// EmittedCounterVec exposes the underlying counter for tests.
func (m *eventMetrics) EmittedCounterVec() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.emitted
}
