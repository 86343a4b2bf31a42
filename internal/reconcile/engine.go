// Package reconcile turns ledger exports into points transactions.
//
// A run resolves clients against the catalogue, attributes every document's
// lines to brands by longest prefix, converts the per-brand sums to points
// and commits each document's transactions through the fingerprint guard.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/ledger"
	"github.com/opensource-finance/bonusledger/internal/repository"
	"github.com/opensource-finance/bonusledger/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bonusledger-reconcile")

// ErrBatchStarted is returned by Run for a batch that is no longer PENDING,
// e.g. when a job message is redelivered.
var ErrBatchStarted = errors.New("batch already started")

// Job describes one uploaded export to process.
type Job struct {
	BatchID     string              `json:"batchId"`
	Path        string              `json:"path"`
	Filename    string              `json:"filename"`
	AsOf        time.Time           `json:"asOf"`
	DefaultKind domain.DocumentKind `json:"defaultKind,omitempty"`
	SubmittedBy string              `json:"submittedBy,omitempty"`
}

// Observer is notified when a run reaches a terminal status.
type Observer interface {
	BatchFinished(batch *domain.ProcessingBatch, elapsed time.Duration)
}

// Engine runs batches.
type Engine struct {
	repo      domain.Repository
	rules     *rules.Engine
	resolver  *Resolver
	catalogue *Catalogue
	synth     *Synthesizer
	credits   *CreditNoteReconciler
	guard     *Guard
	cfg       domain.ReconcileConfig
	observer  Observer
	now       func() time.Time
}

// NewEngine creates an engine. ruleEngine may be nil, in which case no line
// is excluded.
func NewEngine(repo domain.Repository, ruleEngine *rules.Engine, cfg domain.ReconcileConfig) *Engine {
	synth := NewSynthesizer()
	return &Engine{
		repo:      repo,
		rules:     ruleEngine,
		resolver:  NewResolver(repo),
		catalogue: NewCatalogue(repo),
		synth:     synth,
		credits:   NewCreditNoteReconciler(repo, synth),
		guard:     NewGuard(repo),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver registers the observer of finished batches.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Submit records a PENDING batch for the job and assigns job.BatchID.
func (e *Engine) Submit(ctx context.Context, job *Job) (*domain.ProcessingBatch, error) {
	if job.Path == "" {
		return nil, fmt.Errorf("%w: job path is required", repository.ErrInvalidInput)
	}
	if job.Filename == "" {
		job.Filename = filepath.Base(job.Path)
	}
	if job.AsOf.IsZero() {
		job.AsOf = e.now()
	}
	if job.DefaultKind == "" {
		job.DefaultKind = e.cfg.DefaultKind
	}

	hash, err := hashFile(job.Path)
	if err != nil {
		return nil, err
	}

	batch := &domain.ProcessingBatch{
		ID:          uuid.New().String(),
		Filename:    job.Filename,
		FileHash:    hash,
		SubmittedBy: job.SubmittedBy,
		AsOf:        job.AsOf.UTC(),
		Status:      domain.BatchPending,
		CreatedAt:   e.now(),
	}
	if err := e.repo.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	job.BatchID = batch.ID

	slog.Info("batch submitted",
		"batch_id", batch.ID,
		"filename", batch.Filename,
		"file_hash", hash,
		"submitted_by", batch.SubmittedBy,
	)
	return batch, nil
}

// Process submits and runs a job in the calling goroutine.
func (e *Engine) Process(ctx context.Context, job Job) (*domain.ProcessingBatch, error) {
	if _, err := e.Submit(ctx, &job); err != nil {
		return nil, err
	}
	return e.Run(ctx, job)
}

// Run processes a submitted batch. The returned batch is finalized as
// COMPLETED or FAILED; a FAILED batch is returned together with its error.
func (e *Engine) Run(ctx context.Context, job Job) (*domain.ProcessingBatch, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "reconcile.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", job.BatchID),
		attribute.String("batch.filename", job.Filename),
	)

	if err := e.repo.StartBatch(ctx, job.BatchID, e.now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrBatchStarted, job.BatchID)
		}
		return nil, fmt.Errorf("start batch: %w", err)
	}

	batch, err := e.repo.GetBatch(ctx, job.BatchID)
	if err != nil {
		return e.abandon(ctx, job, fmt.Errorf("load batch: %w", err))
	}
	if job.DefaultKind == "" {
		job.DefaultKind = e.cfg.DefaultKind
	}

	report, runErr := e.run(ctx, job, batch.AsOf)

	finished := e.now()
	batch.Report = report
	batch.FinishedAt = &finished
	batch.Status = domain.BatchCompleted
	if runErr != nil {
		batch.Status = domain.BatchFailed
		batch.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	// The batch must be finalized even when the run was cancelled.
	if err := e.repo.FinalizeBatch(context.WithoutCancel(ctx), batch); err != nil {
		return nil, fmt.Errorf("finalize batch: %w", err)
	}

	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.BatchFinished(batch, elapsed)
	}

	if runErr != nil {
		slog.Error("batch failed",
			"batch_id", batch.ID,
			"error", runErr,
			"duration_ms", elapsed.Milliseconds(),
		)
		return batch, runErr
	}

	slog.Info("batch completed",
		"batch_id", batch.ID,
		"rows_read", report.RowsRead,
		"rows_skipped", report.RowsSkipped,
		"documents", report.DocumentsProcessed,
		"transactions_created", report.TransactionsCreated(),
		"duplicates_skipped", report.DuplicatesSkipped,
		"duration_ms", elapsed.Milliseconds(),
	)
	return batch, nil
}

// abandon finalizes a started batch as FAILED when it cannot be run, so it
// does not stay RUNNING.
func (e *Engine) abandon(ctx context.Context, job Job, cause error) (*domain.ProcessingBatch, error) {
	finished := e.now()
	batch := &domain.ProcessingBatch{
		ID:         job.BatchID,
		Filename:   job.Filename,
		Status:     domain.BatchFailed,
		Error:      cause.Error(),
		FinishedAt: &finished,
	}
	if err := e.repo.FinalizeBatch(context.WithoutCancel(ctx), batch); err != nil {
		slog.Error("failed to finalize abandoned batch",
			"batch_id", job.BatchID,
			"error", err,
		)
		return nil, errors.Join(cause, fmt.Errorf("finalize batch: %w", err))
	}
	if e.observer != nil {
		e.observer.BatchFinished(batch, 0)
	}
	return batch, cause
}

func (e *Engine) run(ctx context.Context, job Job, asOf time.Time) (*domain.BatchReport, error) {
	rec := newRecorder(e.cfg.MaxDiagnostics)

	loaded, err := e.load(ctx, job)
	if err != nil {
		return rec.report, err
	}
	rec.report.RowsRead = loaded.RowsRead
	for _, rowErr := range loaded.Errors {
		rec.rowSkipped(rowErr)
	}

	lines := e.filter(loaded.Lines, rec)

	var clientCodes []string
	linesPerClient := make(map[string]int)
	for _, l := range lines {
		if linesPerClient[l.ClientCode] == 0 {
			clientCodes = append(clientCodes, l.ClientCode)
		}
		linesPerClient[l.ClientCode]++
	}

	resolution, err := e.resolver.Resolve(ctx, clientCodes, asOf)
	if err != nil {
		return rec.report, fmt.Errorf("resolve clients: %w", err)
	}
	for _, code := range resolution.Unregistered {
		rec.clientUnregistered(code, linesPerClient[code])
	}

	tables := make(map[string]*PrefixTable)
	skipped := make(map[string]bool)

	for _, doc := range GroupDocuments(lines) {
		if err := ctx.Err(); err != nil {
			return rec.report, fmt.Errorf("run interrupted: %w", err)
		}

		client, ok := resolution.Resolved[doc.ClientCode]
		if !ok || skipped[doc.ClientCode] {
			continue
		}

		table, ok := tables[doc.ClientCode]
		if !ok {
			table, err = e.catalogue.Lookup(ctx, client.Contract, asOf)
			if errors.Is(err, domain.ErrNoActiveBonus) {
				skipped[doc.ClientCode] = true
				rec.clientNoBonus(doc.ClientCode, linesPerClient[doc.ClientCode])
				continue
			}
			if err != nil {
				rec.documentFailed(doc, err)
				continue
			}
			tables[doc.ClientCode] = table
		}

		e.processDocument(ctx, job.BatchID, client, doc, table, rec)
	}

	return rec.report, nil
}

func (e *Engine) load(ctx context.Context, job Job) (*ledger.Result, error) {
	_, span := tracer.Start(ctx, "ledger.Load")
	defer span.End()

	f, err := os.Open(job.Path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	res, err := ledger.Load(f, job.Filename, ledger.Options{DefaultKind: job.DefaultKind})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("ledger.rows_read", res.RowsRead),
		attribute.Int("ledger.row_errors", len(res.Errors)),
	)
	return res, nil
}

// filter drops lines matched by an exclusion rule. A rule that fails to
// evaluate is logged and does not exclude the line by itself.
func (e *Engine) filter(lines []domain.LedgerLine, rec *recorder) []domain.LedgerLine {
	if e.rules == nil || e.rules.RulesCount() == 0 {
		return lines
	}

	kept := make([]domain.LedgerLine, 0, len(lines))
	for i := range lines {
		l := &lines[i]
		verdict, err := e.rules.Evaluate(l)
		if err != nil {
			slog.Warn("line rule evaluation failed",
				"row", l.Row,
				"document_id", l.DocumentID,
				"error", err,
			)
		}
		if verdict != nil && verdict.Excluded {
			rec.lineExcluded(l, verdict.RuleID)
			continue
		}
		kept = append(kept, *l)
	}
	return kept
}

func (e *Engine) processDocument(ctx context.Context, batchID string, client *ResolvedClient, doc *Document, table *PrefixTable, rec *recorder) {
	ctx, span := tracer.Start(ctx, "reconcile.Document")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", doc.DocumentID),
		attribute.String("document.kind", string(doc.Kind)),
		attribute.String("client.code", doc.ClientCode),
	)

	agg := Aggregate(doc, table)
	rec.linesUnmatched(len(agg.Unmatched))
	for _, a := range agg.Ambiguous {
		rec.lineAmbiguous(a)
	}

	var candidates []*domain.PointsTransaction
	for _, bs := range agg.Sums {
		var (
			tx  *domain.PointsTransaction
			err error
		)
		if doc.Kind == domain.KindCreditNote {
			tx, err = e.credits.Reverse(ctx, client, doc, bs, batchID)
		} else {
			tx, err = e.synth.Standard(client, doc, bs, batchID)
		}
		if errors.Is(err, domain.ErrNoPriorGrant) {
			rec.noPriorGrant(doc, bs, err)
			continue
		}
		if err != nil {
			span.RecordError(err)
			rec.documentFailed(doc, err)
			return
		}
		if tx == nil {
			rec.zeroAmount()
			continue
		}
		candidates = append(candidates, tx)
	}

	res, err := e.guard.Commit(ctx, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("document commit failed",
			"batch_id", batchID,
			"document_id", doc.DocumentID,
			"client_code", doc.ClientCode,
			"error", err,
		)
		rec.documentFailed(doc, err)
		return
	}
	rec.committed(res)

	slog.Debug("document processed",
		"batch_id", batchID,
		"document_id", doc.DocumentID,
		"client_code", doc.ClientCode,
		"created", len(res.Created),
		"duplicates", len(res.Duplicates),
	)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash export: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
