// Package config loads bonusledger configuration from a TOML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/opensource-finance/bonusledger/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BONUSLEDGER_"

// Load builds the effective configuration.
// Precedence, lowest first: tier defaults, TOML file at path (optional), environment.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(EnvPrefix+"TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Reconcile.DefaultKind, _ = domain.ParseDocumentKind(string(cfg.Reconcile.DefaultKind))
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func Validate(cfg *domain.Config) error {
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported repository driver: %q", cfg.Repository.Driver)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %q", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("unsupported event bus type: %q", cfg.EventBus.Type)
	}
	if _, ok := domain.ParseDocumentKind(string(cfg.Reconcile.DefaultKind)); !ok {
		return fmt.Errorf("unsupported default document kind: %q", cfg.Reconcile.DefaultKind)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	return nil
}

func applyEnv(cfg *domain.Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("HOST", &cfg.Server.Host)
	str("UPLOAD_DIR", &cfg.Server.UploadDir)
	str("DB_DRIVER", &cfg.Repository.Driver)
	str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)
	str("CACHE_TYPE", &cfg.Cache.Type)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	str("BUS_TYPE", &cfg.EventBus.Type)
	str("NATS_URL", &cfg.EventBus.NATSUrl)
	str("NATS_TOKEN", &cfg.EventBus.NATSToken)
	str("LOG_LEVEL", &cfg.Logging.Level)

	if v, ok := os.LookupEnv(EnvPrefix + "DEFAULT_KIND"); ok {
		kind, valid := domain.ParseDocumentKind(v)
		if !valid {
			return fmt.Errorf("invalid %sDEFAULT_KIND: %q", EnvPrefix, v)
		}
		cfg.Reconcile.DefaultKind = kind
	}

	for name, dst := range map[string]*int{
		"PORT":            &cfg.Server.Port,
		"POSTGRES_PORT":   &cfg.Repository.PostgresPort,
		"REDIS_DB":        &cfg.Cache.RedisDB,
		"WORKER_COUNT":    &cfg.Reconcile.WorkerCount,
		"MAX_DIAGNOSTICS": &cfg.Reconcile.MaxDiagnostics,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*bool{
		"ASYNC_UPLOADS":   &cfg.Server.AsyncUploads,
		"TRACING_ENABLED": &cfg.Tracing.Enabled,
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
	} {
		if err := flag(name, dst); err != nil {
			return err
		}
	}

	if os.Getenv(EnvPrefix+"DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}
