package domain

import (
	"time"
)

// Config holds the complete bonusledger configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Tier determines feature availability
	Tier Tier `toml:"tier"`

	// Component configurations
	Repository RepositoryConfig `toml:"repository"`
	Cache      CacheConfig      `toml:"cache"`
	EventBus   EventBusConfig   `toml:"event_bus"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`

	// Observability
	Logging LoggingConfig `toml:"logging"`
	Tracing TracingConfig `toml:"tracing"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`  // seconds
	WriteTimeout int    `toml:"write_timeout"` // seconds

	// UploadDir receives exports submitted over HTTP before a worker picks them up.
	UploadDir string `toml:"upload_dir"`

	// MaxUploadBytes bounds the multipart body of POST /uploads.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`

	// AsyncUploads hands uploads to the worker instead of processing inline.
	AsyncUploads bool `toml:"async_uploads"`
}

// ReconcileConfig tunes a processing run.
type ReconcileConfig struct {
	// DefaultKind applies to rows of exports that carry no kind marker.
	DefaultKind DocumentKind `toml:"default_kind"`

	// MaxDiagnostics caps the per-item diagnostics kept on a report.
	MaxDiagnostics int `toml:"max_diagnostics"`

	// WorkerCount is the number of concurrent batch runs per worker process.
	WorkerCount int `toml:"worker_count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels in a single process
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis with distributed workers
	TierPro Tier = "pro"
)

// Duration is a time.Duration that decodes from strings such as "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   120,
			UploadDir:      "./uploads",
			MaxUploadBytes: 32 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./bonusledger.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     Duration{5 * time.Minute},
			BatchTTL:     Duration{24 * time.Hour},
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Reconcile: ReconcileConfig{
			DefaultKind:    KindInvoice,
			MaxDiagnostics: 1000,
			WorkerCount:    1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "bonusledger",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
// Uploads are queued on NATS and processed by worker processes sharing PostgreSQL.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Server.AsyncUploads = true
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "bonusledger",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       Duration{5 * time.Minute},
		BatchTTL:       Duration{24 * time.Hour},
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "bonusledger-workers",
	}
	cfg.Reconcile.WorkerCount = 2
	cfg.Tracing.Enabled = true
	return cfg
}
