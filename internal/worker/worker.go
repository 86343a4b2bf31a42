// Package worker runs submitted batches asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/reconcile"
)

// Runner runs one submitted batch to completion.
// *reconcile.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, job reconcile.Job) (*domain.ProcessingBatch, error)
}

// Worker consumes TopicBatchSubmitted and publishes TopicBatchCompleted.
type Worker struct {
	bus    domain.EventBus
	runner Runner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	slots         chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of batches run concurrently.
	WorkerCount int
}

// BatchEvent is the TopicBatchCompleted payload.
type BatchEvent struct {
	BatchID             string             `json:"batchId"`
	Filename            string             `json:"filename"`
	Status              domain.BatchStatus `json:"status"`
	Error               string             `json:"error,omitempty"`
	TransactionsCreated int                `json:"transactionsCreated"`
	DuplicatesSkipped   int                `json:"duplicatesSkipped"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, runner Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue publishes a submitted job for a worker to pick up.
func Enqueue(ctx context.Context, bus domain.EventBus, job reconcile.Job) error {
	if job.BatchID == "" {
		return fmt.Errorf("job has no batch id")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return bus.Publish(ctx, domain.TopicBatchSubmitted, payload)
}

// Start subscribes to submitted batches.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.slots = make(chan struct{}, cfg.WorkerCount)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicBatchSubmitted,
		"worker_count", cfg.WorkerCount,
	)
	return nil
}

// handleMessage blocks until a slot is free so the bus applies backpressure.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var job reconcile.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		slog.Error("failed to parse batch job",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	select {
	case w.slots <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.slots }()
		w.process(job, msg.ID)
	}()
	return nil
}

func (w *Worker) process(job reconcile.Job, messageID string) {
	start := time.Now()

	slog.Debug("processing batch",
		"batch_id", job.BatchID,
		"message_id", messageID,
	)

	batch, err := w.runner.Run(w.ctx, job)
	if errors.Is(err, reconcile.ErrBatchStarted) {
		// Redelivery of a batch another worker already took.
		slog.Info("batch already started, skipping",
			"batch_id", job.BatchID,
			"message_id", messageID,
		)
		return
	}
	if batch == nil {
		slog.Error("batch could not be run",
			"batch_id", job.BatchID,
			"error", err,
		)
		return
	}

	event := BatchEvent{
		BatchID:  batch.ID,
		Filename: batch.Filename,
		Status:   batch.Status,
		Error:    batch.Error,
	}
	if batch.Report != nil {
		event.TransactionsCreated = batch.Report.TransactionsCreated()
		event.DuplicatesSkipped = batch.Report.DuplicatesSkipped
	}

	payload, _ := json.Marshal(event)
	if err := w.bus.Publish(context.WithoutCancel(w.ctx), domain.TopicBatchCompleted, payload); err != nil {
		slog.Error("failed to publish batch completion",
			"batch_id", batch.ID,
			"error", err,
		)
	}

	slog.Info("batch processed",
		"batch_id", batch.ID,
		"status", batch.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop unsubscribes, waits for running batches, then releases the worker.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()
	w.cancel()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Running           int      `json:"running"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Running:           len(w.slots),
	}
}
