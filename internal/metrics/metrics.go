package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for classboard.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	ActiveConnections  prometheus.Gauge
	Rooms              prometheus.Gauge
	JoinsTotal         *prometheus.CounterVec
	CanvasUpdatesTotal prometheus.Counter
	ChatMessagesTotal  prometheus.Counter
	PersistTotal       *prometheus.CounterVec
	DroppedFramesTotal prometheus.Counter
	RateLimitedTotal   *prometheus.CounterVec
	RejectedTotal      *prometheus.CounterVec
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates and registers all metrics on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "classboard_connections_total",
			Help: "Total websocket connections accepted",
		}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "classboard_active_connections",
			Help: "Current open websocket connections",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "classboard_rooms",
			Help: "Rooms currently held in the registry",
		}),
		JoinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_joins_total",
			Help: "Room joins by assigned role",
		}, []string{"role"}),
		CanvasUpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "classboard_canvas_updates_total",
			Help: "Canvas updates broadcast",
		}),
		ChatMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "classboard_chat_messages_total",
			Help: "Chat messages broadcast",
		}),
		PersistTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_persist_total",
			Help: "Background persistence tasks by operation and result",
		}, []string{"op", "result"}),
		DroppedFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "classboard_dropped_frames_total",
			Help: "Outbound frames dropped because a connection buffer was full",
		}),
		RateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_rate_limited_total",
			Help: "Inbound events rejected by the rate limiter",
		}, []string{"event"}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classboard_rejected_events_total",
			Help: "Inbound events rejected by the coordinator",
		}, []string{"reason"}),
	}
}

// ConnectionOpened records a new websocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a closed websocket connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// SetRooms publishes the registry size.
func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.Rooms.Set(float64(n))
}

// Joined records a join with its assigned role.
func (m *Metrics) Joined(role string) {
	if m == nil {
		return
	}
	m.JoinsTotal.WithLabelValues(role).Inc()
}

// CanvasUpdated records one broadcast canvas update.
func (m *Metrics) CanvasUpdated() {
	if m == nil {
		return
	}
	m.CanvasUpdatesTotal.Inc()
}

// ChatBroadcast records one broadcast chat message.
func (m *Metrics) ChatBroadcast() {
	if m == nil {
		return
	}
	m.ChatMessagesTotal.Inc()
}

// Persisted records the outcome of a persistence task.
func (m *Metrics) Persisted(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PersistTotal.WithLabelValues(op, result).Inc()
}

// FrameDropped records an outbound frame lost to backpressure.
func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.DroppedFramesTotal.Inc()
}

// RateLimited records an inbound event rejected by the limiter.
func (m *Metrics) RateLimited(event string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(event).Inc()
}

// Rejected records an inbound event the coordinator refused.
func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}
