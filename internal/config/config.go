package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP        *HTTPConfig        `yaml:"http"`
	WebSocket   *WebSocketConfig   `yaml:"websocket"`
	Database    *DatabaseConfig    `yaml:"database"`
	Persistence *PersistenceConfig `yaml:"persistence"`
	Room        *RoomConfig        `yaml:"room"`
	RateLimit   *RateLimitConfig   `yaml:"rate_limit"`
	Logging     *LoggingConfig     `yaml:"logging"`
	Monitoring  *MonitoringConfig  `yaml:"monitoring"`
}

// HTTPConfig covers the listener shared by the API and the websocket endpoint
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WebSocketConfig holds per-connection transport settings
type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string        `yaml:"path"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxConnections int           `yaml:"max_connections"`
	MigrationsPath string        `yaml:"migrations_path"`
}

// PersistenceConfig sizes the background write queue
type PersistenceConfig struct {
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// RoomConfig tunes the coordinator
type RoomConfig struct {
	ReapEmpty     bool          `yaml:"reap_empty"`
	EventBuffer   int           `yaml:"event_buffer"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

// RateLimitConfig applies to send-message per connection; canvas updates are never limited
type RateLimitConfig struct {
	Enabled         bool    `yaml:"enabled"`
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
}

// LoggingConfig controls slog output and file rotation
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MonitoringConfig controls the Prometheus endpoint
type MonitoringConfig struct {
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Database on local filesystem, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     256,
			MaxMessageSize: 4 << 20,
		},
		Database: &DatabaseConfig{
			Path:           "./data/classboard.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		Persistence: &PersistenceConfig{
			Workers:     4,
			QueueSize:   256,
			TaskTimeout: 10 * time.Second,
		},
		Room: &RoomConfig{
			ReapEmpty:     false,
			EventBuffer:   1024,
			LookupTimeout: 500 * time.Millisecond,
		},
		RateLimit: &RateLimitConfig{
			Enabled:         true,
			EventsPerSecond: 30,
			Burst:           60,
		},
		Logging: &LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Monitoring: &MonitoringConfig{
			MetricsEnabled:  true,
			MetricsEndpoint: "/metrics",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Database == nil || c.Persistence == nil ||
		c.Room == nil || c.RateLimit == nil || c.Logging == nil || c.Monitoring == nil {
		return errors.New("all configuration sections are required")
	}

	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}
	// port 0 binds any free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.Persistence.Workers <= 0 || c.Persistence.QueueSize <= 0 {
		return errors.New("persistence workers and queue size must be positive")
	}
	if c.Persistence.TaskTimeout <= 0 {
		return errors.New("persistence task timeout must be positive")
	}

	if c.Room.EventBuffer <= 0 {
		return errors.New("room event buffer must be positive")
	}
	if c.Room.LookupTimeout <= 0 {
		return errors.New("room lookup timeout must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.EventsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("rate limit requires positive events_per_second and burst")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	if c.Monitoring.MetricsEnabled && !strings.HasPrefix(c.Monitoring.MetricsEndpoint, "/") {
		return errors.New("metrics endpoint must start with /")
	}

	return nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Supports containerized deployments and configuration management systems
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnvOverrides(config)
	return config
}

func applyEnvOverrides(cfg *Config) {
	envMap := map[string]func(string){
		"CLASSBOARD_HTTP_HOST":                 func(v string) { cfg.HTTP.Host = v },
		"CLASSBOARD_HTTP_PORT":                 func(v string) { cfg.HTTP.Port = parseInt(v, cfg.HTTP.Port) },
		"CLASSBOARD_HTTP_READ_TIMEOUT":         func(v string) { cfg.HTTP.ReadTimeout = parseDuration(v, cfg.HTTP.ReadTimeout) },
		"CLASSBOARD_HTTP_WRITE_TIMEOUT":        func(v string) { cfg.HTTP.WriteTimeout = parseDuration(v, cfg.HTTP.WriteTimeout) },
		"CLASSBOARD_HTTP_SHUTDOWN_TIMEOUT":     func(v string) { cfg.HTTP.ShutdownTimeout = parseDuration(v, cfg.HTTP.ShutdownTimeout) },
		"CLASSBOARD_WEBSOCKET_PING_INTERVAL":   func(v string) { cfg.WebSocket.PingInterval = parseDuration(v, cfg.WebSocket.PingInterval) },
		"CLASSBOARD_WEBSOCKET_READ_TIMEOUT":    func(v string) { cfg.WebSocket.ReadTimeout = parseDuration(v, cfg.WebSocket.ReadTimeout) },
		"CLASSBOARD_WEBSOCKET_WRITE_TIMEOUT":   func(v string) { cfg.WebSocket.WriteTimeout = parseDuration(v, cfg.WebSocket.WriteTimeout) },
		"CLASSBOARD_WEBSOCKET_BUFFER_SIZE":     func(v string) { cfg.WebSocket.BufferSize = parseInt(v, cfg.WebSocket.BufferSize) },
		"CLASSBOARD_WEBSOCKET_ALLOWED_ORIGINS": func(v string) { cfg.WebSocket.AllowedOrigins = splitList(v) },
		"CLASSBOARD_DATABASE_PATH":             func(v string) { cfg.Database.Path = v },
		"CLASSBOARD_DATABASE_TIMEOUT":          func(v string) { cfg.Database.Timeout = parseDuration(v, cfg.Database.Timeout) },
		"CLASSBOARD_DATABASE_MIGRATIONS_PATH":  func(v string) { cfg.Database.MigrationsPath = v },
		"CLASSBOARD_PERSISTENCE_WORKERS":       func(v string) { cfg.Persistence.Workers = parseInt(v, cfg.Persistence.Workers) },
		"CLASSBOARD_ROOM_REAP_EMPTY":           func(v string) { cfg.Room.ReapEmpty = parseBool(v, cfg.Room.ReapEmpty) },
		"CLASSBOARD_RATE_LIMIT_ENABLED":        func(v string) { cfg.RateLimit.Enabled = parseBool(v, cfg.RateLimit.Enabled) },
		"CLASSBOARD_LOGGING_LEVEL":             func(v string) { cfg.Logging.Level = v },
		"CLASSBOARD_LOGGING_FORMAT":            func(v string) { cfg.Logging.Format = v },
		"CLASSBOARD_LOGGING_FILE":              func(v string) { cfg.Logging.File = v },
		"CLASSBOARD_METRICS_ENABLED":           func(v string) { cfg.Monitoring.MetricsEnabled = parseBool(v, cfg.Monitoring.MetricsEnabled) },
	}

	for env, setter := range envMap {
		if v := os.Getenv(env); v != "" {
			setter(v)
		}
	}
}

// LoadFromFile reads a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// Keys absent from the file keep their environment or default value
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := mergeFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return config, nil
}

func mergeFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
