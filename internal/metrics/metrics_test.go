package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	// Reset default registry for test isolation
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := New()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetRooms(3)
	m.Joined("editor")
	m.Joined("viewer")
	m.CanvasUpdated()
	m.ChatBroadcast()
	m.Persisted("canvas", nil)
	m.Persisted("message", errors.New("boom"))
	m.FrameDropped()
	m.RateLimited("send-canvas")
	m.Rejected("no_session")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	names := make(map[string]bool)
	values := make(map[string]float64)
	for _, f := range families {
		names[f.GetName()] = true
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[f.GetName()] += metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}

	expected := []string{
		"classboard_connections_total",
		"classboard_active_connections",
		"classboard_rooms",
		"classboard_joins_total",
		"classboard_canvas_updates_total",
		"classboard_chat_messages_total",
		"classboard_persist_total",
		"classboard_dropped_frames_total",
		"classboard_rate_limited_total",
		"classboard_rejected_events_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("missing metric: %s", name)
		}
	}

	if got := values["classboard_active_connections"]; got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}
	if got := values["classboard_persist_total"]; got != 2 {
		t.Errorf("persist tasks = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetRooms(1)
	m.Joined("editor")
	m.CanvasUpdated()
	m.ChatBroadcast()
	m.Persisted("canvas", nil)
	m.FrameDropped()
	m.RateLimited("send-message")
	m.Rejected("x")
}
