package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/repository"
	"github.com/shopspring/decimal"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig points the store at a fresh SQLite file seeded with client
// 1001 holding brand BR1 at ratio 1.0.
func writeConfig(t *testing.T) (configFile, dir string) {
	t.Helper()
	dir = t.TempDir()
	dbPath := filepath.Join(dir, "cli.db")

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	ctx := context.Background()
	brand := domain.Brand{ID: "br1", Name: "Brand One", Prefix: "BR1"}
	for _, err := range []error{
		repo.SaveClient(ctx, &domain.Client{ID: "cl-1", Code: "1001", Name: "Contracted"}),
		repo.SaveContract(ctx, &domain.Contract{ID: "ct-1", ClientID: "cl-1", ValidFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Active: true}),
		repo.SaveBrand(ctx, &brand),
		repo.SaveBrandBonus(ctx, &domain.BrandBonus{ID: "bb-1", ContractID: "ct-1", Brand: brand, Ratio: decimal.NewFromInt(1)}),
	} {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	repo.Close()

	configFile = filepath.Join(dir, "bonusledger.toml")
	content := fmt.Sprintf(`
[repository]
driver = "sqlite"
sqlite_path = %q

[logging]
level = "error"

[metrics]
enabled = false
`, dbPath)
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configFile, dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "bonusledger "+Version) {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestProcessCommand(t *testing.T) {
	configFile, dir := writeConfig(t)

	export := filepath.Join(dir, "export.csv")
	os.WriteFile(export, []byte("client_code,document_id,item_code,value\n1001,INV-1,BR1-1,42.4\n9999,INV-2,BR1-1,10\n"), 0o644)

	t.Run("PrintsReport", func(t *testing.T) {
		out, err := execute(t, "process", export, "--config", configFile, "--as-of", "2024-06-01", "--default-kind", "invoice", "--operator", "alice")
		if err != nil {
			t.Fatalf("process failed: %v\n%s", err, out)
		}

		var batch domain.ProcessingBatch
		if err := json.Unmarshal([]byte(out), &batch); err != nil {
			t.Fatalf("output is not a batch: %v\n%s", err, out)
		}
		if batch.Status != domain.BatchCompleted {
			t.Errorf("expected COMPLETED, got %s", batch.Status)
		}
		if batch.SubmittedBy != "alice" {
			t.Errorf("expected submitter alice, got %q", batch.SubmittedBy)
		}
		if batch.Report.StandardCreated != 1 || batch.Report.ClientsUnregistered != 1 {
			t.Errorf("unexpected report: %+v", batch.Report)
		}
	})

	t.Run("SecondRunIsIdempotent", func(t *testing.T) {
		out, err := execute(t, "process", export, "--config", configFile, "--as-of", "2024-06-01", "--default-kind", "invoice", "--operator", "alice")
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}
		var batch domain.ProcessingBatch
		json.Unmarshal([]byte(out), &batch)
		if batch.Report.TransactionsCreated() != 0 || batch.Report.DuplicatesSkipped != 1 {
			t.Errorf("expected only a duplicate skip, got %+v", batch.Report)
		}
	})

	t.Run("MalformedExportFails", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.csv")
		os.WriteFile(bad, []byte("foo,bar\n1,2\n"), 0o644)

		out, err := execute(t, "process", bad, "--config", configFile, "--as-of", "2024-06-01", "--default-kind", "invoice", "--operator", "alice")
		if !domain.IsMalformedInput(err) {
			t.Fatalf("expected malformed input error, got %v", err)
		}
		if !strings.Contains(out, `"status": "FAILED"`) {
			t.Errorf("expected FAILED batch in output, got %s", out)
		}
	})

	t.Run("FlagValidation", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
		}{
			{"BadAsOf", []string{"process", export, "--config", configFile, "--as-of", "june", "--default-kind", "invoice"}},
			{"BadKind", []string{"process", export, "--config", configFile, "--as-of", "2024-06-01", "--default-kind", "refund"}},
			{"BadExtension", []string{"process", filepath.Join(dir, "export.pdf"), "--config", configFile, "--as-of", "2024-06-01", "--default-kind", "invoice"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := execute(t, tt.args...); err == nil {
					t.Error("expected error")
				}
			})
		}
	})
}

func TestMigrateCommand(t *testing.T) {
	configFile, _ := writeConfig(t)
	if out, err := execute(t, "migrate", "--config", configFile); err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, domain.LoggingConfig{Level: "info", Format: "text"}).Info("hello", "batch_id", "b-1")
	if !strings.Contains(buf.String(), "batch_id=b-1") {
		t.Errorf("expected text output, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, domain.LoggingConfig{Level: "info", Format: "json"}).Info("hello", "batch_id", "b-1")
	if !strings.Contains(buf.String(), `"batch_id":"b-1"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
