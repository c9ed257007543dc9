package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"classboard/internal/config"
	"classboard/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "classboard.db")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(cfg, logging.New(io.Discard, "error", "json"))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	return application
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Room.EventBuffer = 0

	if _, err := NewApplication(cfg, nil); err == nil {
		t.Fatal("Expected error for invalid config")
	}
}

func TestApplication_StartStop(t *testing.T) {
	application := newTestApp(t, testConfig(t))

	ctx := context.Background()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if strings.HasSuffix(application.Addr(), ":0") {
		t.Errorf("Expected bound port, got %s", application.Addr())
	}
	if !application.Coordinator().IsRunning() {
		t.Error("Coordinator should be running after Start")
	}

	resp, err := http.Get("http://" + application.Addr() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, application.ShutdownTimeout())
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if application.Coordinator().IsRunning() {
		t.Error("Coordinator should stop")
	}

	select {
	case _, open := <-application.Errors():
		if open {
			t.Error("Expected no serve error")
		}
	case <-time.After(time.Second):
		t.Error("Serve goroutine did not finish")
	}
}

func TestApplication_Routes(t *testing.T) {
	application := newTestApp(t, testConfig(t))
	defer application.Store().Close()

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusOK},
		{"/api/rooms", http.StatusOK},
		{"/api/lessons/missing/messages", http.StatusNotFound},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(server.URL + tt.path)
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, resp.StatusCode)
		}
	}
}

func TestApplication_MetricsExposed(t *testing.T) {
	application := newTestApp(t, testConfig(t))
	defer application.Store().Close()

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "classboard_active_connections") {
		t.Error("Expected classboard metrics in exposition")
	}
}

func TestApplication_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Monitoring.MetricsEnabled = false
	application := newTestApp(t, cfg)
	defer application.Store().Close()

	server := httptest.NewServer(application.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Metrics request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 with metrics disabled, got %d", resp.StatusCode)
	}
}

func TestOpenDatabase_CreatesSchema(t *testing.T) {
	cfg := testConfig(t)
	store, err := OpenDatabase(cfg.Database, logging.New(io.Discard, "error", "json"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer store.Close()

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
