package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters exposed on /metrics. Each component
// receives the one instance constructed at wiring time; a nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsOpen         prometheus.Gauge
	EventsRouted            *prometheus.CounterVec
	EventsRejected          *prometheus.CounterVec
	DeliveriesDropped       prometheus.Counter
	NotificationsDispatched prometheus.Counter
	NotificationsDeduped    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "classhub_connections_open",
			Help: "Currently open websocket connections.",
		}),
		EventsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classhub_events_routed_total",
			Help: "Inbound events routed, by event type.",
		}, []string{"type"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classhub_events_rejected_total",
			Help: "Inbound events dropped, by ack error code.",
		}, []string{"code"}),
		DeliveriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "classhub_deliveries_dropped_total",
			Help: "Best-effort deliveries dropped on closed or full connections.",
		}),
		NotificationsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "classhub_notifications_dispatched_total",
			Help: "Notification deliveries attempted.",
		}),
		NotificationsDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "classhub_notifications_deduped_total",
			Help: "Notifications rejected by the idempotency-key window.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Nil-safe recording helpers.

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.ConnectionsOpen.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.ConnectionsOpen.Dec()
	}
}

func (m *Metrics) EventRouted(eventType string) {
	if m != nil {
		m.EventsRouted.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EventRejected(code string) {
	if m != nil {
		m.EventsRejected.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) DeliveryDropped() {
	if m != nil {
		m.DeliveriesDropped.Inc()
	}
}

func (m *Metrics) NotificationDispatched() {
	if m != nil {
		m.NotificationsDispatched.Inc()
	}
}

func (m *Metrics) NotificationDeduped() {
	if m != nil {
		m.NotificationsDeduped.Inc()
	}
}
