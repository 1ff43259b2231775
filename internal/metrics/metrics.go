// Package metrics holds the Prometheus instrumentation for the signaling
// server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons for roomrelay_messages_dropped_total. The signaling layer is
// deliberately permissive: every reason here ends with the message being
// discarded, never with an error surfaced to the peer.
const (
	DropReasonMalformed            = "malformed"
	DropReasonNotInRoom            = "not_in_room"
	DropReasonUnknownTarget        = "unknown_target"
	DropReasonAlreadyJoined        = "already_joined"
	DropReasonDuplicateParticipant = "duplicate_participant"
	DropReasonRoomFull             = "room_full"
	DropReasonTooManyRooms         = "too_many_rooms"
	DropReasonSendBufferFull       = "send_buffer_full"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	RoomsActive    prometheus.Gauge

	messagesRouted  *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
}

// New builds a Metrics instance backed by its own registry so tests can run
// in parallel without clashing on the global default.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_sessions_active",
			Help: "Currently connected websocket sessions.",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_rooms_active",
			Help: "Rooms with at least one member.",
		}),
		messagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomrelay_messages_routed_total",
			Help: "Signaling messages routed to at least one recipient, by type.",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomrelay_messages_dropped_total",
			Help: "Signaling messages dropped without delivery, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.RoomsActive,
		m.messagesRouted,
		m.messagesDropped,
	)
	return m
}

func (m *Metrics) Routed(messageType string) {
	m.messagesRouted.WithLabelValues(messageType).Inc()
}

func (m *Metrics) Dropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

// DroppedCounter exposes a single drop counter, mainly for tests.
func (m *Metrics) DroppedCounter(reason string) prometheus.Counter {
	return m.messagesDropped.WithLabelValues(reason)
}

// RoutedCounter exposes a single routed counter, mainly for tests.
func (m *Metrics) RoutedCounter(messageType string) prometheus.Counter {
	return m.messagesRouted.WithLabelValues(messageType)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
