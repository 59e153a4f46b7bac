package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Kleo-Protocol/kleo-contracts/core/events"
)

type eventMetrics struct {
	protocolEvents *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			protocolEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kleo",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of protocol events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.protocolEvents)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	m.protocolEvents.WithLabelValues(normalized).Inc()
}

// MeteredEmitter counts every emitted event before forwarding it to the
// wrapped emitter.
type MeteredEmitter struct {
	next events.Emitter
}

// NewMeteredEmitter wraps next with event counting. A nil next drops events
// after counting them.
func NewMeteredEmitter(next events.Emitter) *MeteredEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MeteredEmitter{next: next}
}

// Emit records the event type and forwards the event.
func (e *MeteredEmitter) Emit(event events.Event) {
	if e == nil {
		return
	}
	Events().RecordEvent(event.EventType())
	e.next.Emit(event)
}
