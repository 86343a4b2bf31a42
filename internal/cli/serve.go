package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/bonusledger/internal/api"
	"github.com/opensource-finance/bonusledger/internal/bus"
	"github.com/opensource-finance/bonusledger/internal/cache"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/worker"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)

	serveCmd.Flags().Bool("no-worker", false, "Do not consume queued batches in this process")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. With async uploads enabled, uploads are queued on the
event bus; unless --no-worker is given this process also runs them.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued batches from the event bus",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func runServe(cmd *cobra.Command, args []string) error {
	noWorker, _ := cmd.Flags().GetBool("no-worker")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting bonusledger",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
	)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var w *worker.Worker
	if cfg.Server.AsyncUploads && !noWorker {
		w, err = startWorker(busImpl, a)
		if err != nil {
			return err
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:       a.repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Reconciler: a.reconciler,
		Rules:      a.rules,
		BatchTTL:   cfg.Cache.BatchTTL.Duration,
		Version:    Version,
	}, a.metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("bonusledger is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"async_uploads", cfg.Server.AsyncUploads,
		"metrics", a.metrics != nil,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Running batches finish before the store closes.
	if w != nil {
		w.Stop()
	}

	slog.Info("bonusledger shutdown complete")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()

	w, err := startWorker(busImpl, a)
	if err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down worker...")
	return w.Stop()
}

func startWorker(eventBus domain.EventBus, a *app) (*worker.Worker, error) {
	w := worker.NewWorker(eventBus, a.reconciler)
	if err := w.Start(worker.Config{WorkerCount: cfg.Reconcile.WorkerCount}); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return w, nil
}
