package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bonusledger.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tier != domain.TierCommunity {
		t.Errorf("Tier = %q, want %q", cfg.Tier, domain.TierCommunity)
	}
	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("Repository.Driver = %q, want sqlite", cfg.Repository.Driver)
	}
	if cfg.Reconcile.DefaultKind != domain.KindInvoice {
		t.Errorf("Reconcile.DefaultKind = %q, want %q", cfg.Reconcile.DefaultKind, domain.KindInvoice)
	}
	if cfg.Cache.BatchTTL.Duration != 24*time.Hour {
		t.Errorf("Cache.BatchTTL = %v, want 24h", cfg.Cache.BatchTTL.Duration)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
async_uploads = true

[repository]
driver = "sqlite"
sqlite_path = "/tmp/ledger.db"

[cache]
type = "memory"
local_ttl = "90s"

[reconcile]
default_kind = "CREDIT_NOTE"
max_diagnostics = 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Server.AsyncUploads {
		t.Error("Server.AsyncUploads should be true")
	}
	if cfg.Repository.SQLitePath != "/tmp/ledger.db" {
		t.Errorf("Repository.SQLitePath = %q", cfg.Repository.SQLitePath)
	}
	if cfg.Cache.LocalTTL.Duration != 90*time.Second {
		t.Errorf("Cache.LocalTTL = %v, want 90s", cfg.Cache.LocalTTL.Duration)
	}
	if cfg.Reconcile.DefaultKind != domain.KindCreditNote {
		t.Errorf("Reconcile.DefaultKind = %q", cfg.Reconcile.DefaultKind)
	}
	if cfg.Reconcile.MaxDiagnostics != 50 {
		t.Errorf("Reconcile.MaxDiagnostics = %d, want 50", cfg.Reconcile.MaxDiagnostics)
	}
	// Untouched sections keep their defaults.
	if cfg.EventBus.Type != "channel" {
		t.Errorf("EventBus.Type = %q, want channel", cfg.EventBus.Type)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
prot = 9090
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BONUSLEDGER_PORT", "7070")
	t.Setenv("BONUSLEDGER_SQLITE_PATH", "/data/env.db")
	t.Setenv("BONUSLEDGER_DEBUG", "true")
	t.Setenv("BONUSLEDGER_DEFAULT_KIND", "dobropis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Repository.SQLitePath != "/data/env.db" {
		t.Errorf("Repository.SQLitePath = %q", cfg.Repository.SQLitePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Reconcile.DefaultKind != domain.KindCreditNote {
		t.Errorf("Reconcile.DefaultKind = %q", cfg.Reconcile.DefaultKind)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv("BONUSLEDGER_TIER", "pro")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Repository.Driver != "postgres" {
		t.Errorf("Repository.Driver = %q, want postgres", cfg.Repository.Driver)
	}
	if cfg.EventBus.Type != "nats" {
		t.Errorf("EventBus.Type = %q, want nats", cfg.EventBus.Type)
	}
	if !cfg.Server.AsyncUploads {
		t.Error("Pro tier should queue uploads")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"driver", func(c *domain.Config) { c.Repository.Driver = "mysql" }},
		{"cache", func(c *domain.Config) { c.Cache.Type = "memcached" }},
		{"bus", func(c *domain.Config) { c.EventBus.Type = "kafka" }},
		{"kind", func(c *domain.Config) { c.Reconcile.DefaultKind = "RECEIPT" }},
		{"port", func(c *domain.Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}
