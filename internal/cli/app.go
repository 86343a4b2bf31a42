package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/metrics"
	"github.com/opensource-finance/bonusledger/internal/reconcile"
	"github.com/opensource-finance/bonusledger/internal/repository"
	"github.com/opensource-finance/bonusledger/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// app is the wiring shared by serve and process.
type app struct {
	repo       domain.Repository
	rules      *rules.Engine
	reconciler *reconcile.Engine
	metrics    *metrics.Metrics

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *domain.Config) (*app, error) {
	a := &app{}

	if cfg.Tracing.Enabled {
		shutdown, err := setupTracing(cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	ruleEngine, err := rules.NewEngine()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	a.rules = ruleEngine
	if err := loadRulesFromDatabase(ctx, repo, ruleEngine); err != nil {
		a.Close(ctx)
		return nil, err
	}
	slog.Info("rule engine initialized", "rules_count", ruleEngine.RulesCount())

	a.reconciler = reconcile.NewEngine(repo, ruleEngine, cfg.Reconcile)
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		a.reconciler.SetObserver(a.metrics)
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			slog.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

// loadRulesFromDatabase loads exclusion rules into the engine.
// Rules are configured via POST /rules; there are no built-in defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListLineRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if len(dbRules) == 0 {
		slog.Info("no exclusion rules in database - configure via POST /rules")
		return nil
	}
	slog.Info("loading rules from database", "count", len(dbRules))
	return engine.LoadRules(dbRules)
}

// setupTracing installs a global tracer provider exporting spans to stderr.
func setupTracing(tc domain.TracingConfig) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}

	name := tc.ServiceName
	if name == "" {
		name = "bonusledger"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(tp)

	slog.Info("tracing enabled", "service_name", name)
	return tp.Shutdown, nil
}
