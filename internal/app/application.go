package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classboard/internal/api"
	"classboard/internal/config"
	"classboard/internal/database"
	"classboard/internal/hub"
	"classboard/internal/metrics"
	"classboard/internal/persist"
	"classboard/internal/room"
	"classboard/internal/router"
	"classboard/internal/session"
	"classboard/internal/websocket"
	pkgdatabase "classboard/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	dbManager  *database.Manager
	rooms      *room.Registry
	sessions   *session.Manager
	registry   *websocket.Registry
	limiter    *router.RateLimiter
	queue      *persist.Queue
	coord      *hub.Hub
	metrics    *metrics.Metrics
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Rooms/Sessions → Registry → Router → Queue → Hub → API → HTTP
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database manager plus schema
	dbManager, err := OpenDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// STEP 2: Metrics on a private registry so several applications can coexist in one process
	var m *metrics.Metrics
	reg := prometheus.NewRegistry()
	if cfg.Monitoring.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewWithRegistry(reg)
	}

	// STEP 3: Live state
	rooms := room.NewRegistry()
	sessions := session.NewManager()
	registry := websocket.NewRegistry(logger, m)

	// STEP 4: Router with optional rate limiting
	var limiter *router.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = router.NewRateLimiter(cfg.RateLimit.EventsPerSecond, cfg.RateLimit.Burst)
	}
	messageRouter, err := router.NewRouter(registry, limiter)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	// STEP 5: Persistence queue
	queue := persist.NewQueue(dbManager, persist.Config{
		Workers:     cfg.Persistence.Workers,
		QueueSize:   cfg.Persistence.QueueSize,
		TaskTimeout: cfg.Persistence.TaskTimeout,
	}, logger, m)

	// STEP 6: Coordinator
	coord, err := hub.NewHub(hub.Config{
		EventBuffer:   cfg.Room.EventBuffer,
		LookupTimeout: cfg.Room.LookupTimeout,
		ReapEmpty:     cfg.Room.ReapEmpty,
	}, hub.Deps{
		Rooms:     rooms,
		Sessions:  sessions,
		Router:    messageRouter,
		Store:     dbManager,
		Persister: queue,
		Logger:    logger,
		Metrics:   m,
	})
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	// STEP 7: WebSocket and API handlers
	wsHandler, err := websocket.NewHandler(websocket.Config{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		SendBuffer:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, registry, coord, logger, m)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to create websocket handler: %w", err)
	}
	apiServer := api.NewServer(rooms, dbManager, registry, logger)

	// STEP 8: HTTP mux with both API and WebSocket endpoints
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.Handle("/ws", wsHandler)
	if cfg.Monitoring.MetricsEnabled {
		mux.Handle(cfg.Monitoring.MetricsEndpoint, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return &Application{
		config:    cfg,
		logger:    logger.With("component", "app"),
		dbManager: dbManager,
		rooms:     rooms,
		sessions:  sessions,
		registry:  registry,
		limiter:   limiter,
		queue:     queue,
		coord:     coord,
		metrics:   m,
		handler:   mux,
		httpServer: &http.Server{
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
	}, nil
}

// OpenDatabase opens the store and applies pending migrations
func OpenDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Manager, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Path,
		MaxConnections:  cfg.MaxConnections,
		ConnMaxLifetime: cfg.Timeout,
		ConnMaxIdleTime: cfg.Timeout / 3,
		MigrationsPath:  cfg.MigrationsPath,
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB(), dbConfig.MigrationsPath)
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info("database ready", "path", cfg.Path)
	return dbManager, nil
}

// Start begins application execution
// Queue and hub start first so the first accepted connection already has a coordinator
func (app *Application) Start(ctx context.Context) error {
	if err := app.queue.Start(); err != nil {
		return fmt.Errorf("failed to start persistence queue: %w", err)
	}

	if err := app.coord.Start(ctx); err != nil {
		app.queue.Stop(context.Background())
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	listener, err := net.Listen("tcp", app.config.Address())
	if err != nil {
		app.coord.Stop(context.Background())
		app.queue.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", app.config.Address(), err)
	}
	app.listener = listener
	app.serveErr = make(chan error, 1)

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", "error", err)
			app.serveErr <- err
		}
		close(app.serveErr)
	}()

	app.logger.Info("classboard started", "address", listener.Addr().String())
	return nil
}

// Errors reports a fatal serve error; it is closed once the server has stopped
func (app *Application) Errors() <-chan error {
	return app.serveErr
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Queue → Limiter → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down classboard")
	var errs []error

	// STEP 1: Stop accepting new connections. Websockets are hijacked, so
	// Shutdown does not see them and they are closed explicitly.
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if n := app.registry.CloseAll(); n > 0 {
		app.logger.Info("closed open connections", "count", n)
	}

	// STEP 2: The coordinator handles what it already accepted, then stops
	// before the queue so no task arrives after the shards close
	if err := app.coord.Stop(ctx); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("coordinator stop: %w", err))
	}

	// STEP 3: Let queued writes finish
	if err := app.queue.Stop(ctx); err != nil && !errors.Is(err, persist.ErrQueueNotRunning) {
		errs = append(errs, err)
	}

	if app.limiter != nil {
		app.limiter.Stop()
	}

	// STEP 4: Close database connections
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}

	app.logger.Info("classboard shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound listen address, or the configured one before Start
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.config.Address()
}

// Handler exposes the full HTTP mux
func (app *Application) Handler() http.Handler {
	return app.handler
}

// Coordinator exposes the hub, mainly so tests can wait on Sync
func (app *Application) Coordinator() *hub.Hub {
	return app.coord
}

// Store exposes the database manager
func (app *Application) Store() *database.Manager {
	return app.dbManager
}

// Rooms exposes the live room registry
func (app *Application) Rooms() *room.Registry {
	return app.rooms
}

// Flush waits until every persistence task queued so far has run
func (app *Application) Flush(ctx context.Context) error {
	return app.queue.Flush(ctx)
}

// ShutdownTimeout is the configured grace period for Stop
func (app *Application) ShutdownTimeout() time.Duration {
	return app.config.HTTP.ShutdownTimeout
}
