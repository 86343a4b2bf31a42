package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

const batchColumns = `
	id, filename, file_hash, submitted_by, as_of, status, error, report,
	created_at, started_at, finished_at
`

// CreateBatch stores a new PENDING batch.
func (r *SQLRepository) CreateBatch(ctx context.Context, b *domain.ProcessingBatch) error {
	if b.ID == "" {
		return fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}
	if b.Status == "" {
		b.Status = domain.BatchPending
	}

	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		b.ID, b.Filename, b.FileHash, b.SubmittedBy, b.AsOf.UTC(), string(b.Status), b.Error,
		nil, b.CreatedAt.UTC(), nullTimePtr(b.StartedAt), nullTimePtr(b.FinishedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: batch %s already exists", ErrConflict, b.ID)
	}
	return err
}

// StartBatch moves a PENDING batch to RUNNING. A batch that was already
// started returns ErrConflict, which makes redelivered jobs harmless.
func (r *SQLRepository) StartBatch(ctx context.Context, id string, startedAt time.Time) error {
	query := `
		UPDATE batches SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		string(domain.BatchRunning), startedAt.UTC(), id, string(domain.BatchPending),
	)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, res, id)
}

// FinalizeBatch records the terminal status and report of a RUNNING batch.
func (r *SQLRepository) FinalizeBatch(ctx context.Context, b *domain.ProcessingBatch) error {
	if !b.Status.Finished() {
		return fmt.Errorf("%w: batch status %s is not terminal", ErrInvalidInput, b.Status)
	}

	var report any
	if b.Report != nil {
		data, err := json.Marshal(b.Report)
		if err != nil {
			return fmt.Errorf("failed to encode batch report: %w", err)
		}
		report = string(data)
	}

	query := `
		UPDATE batches SET status = ?, error = ?, report = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		string(b.Status), b.Error, report, nullTimePtr(b.FinishedAt), b.ID, string(domain.BatchRunning),
	)
	if err != nil {
		return err
	}
	return r.checkTransition(ctx, res, b.ID)
}

func (r *SQLRepository) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	current, err := r.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: batch %s is %s", ErrConflict, id, current.Status)
}

// GetBatch retrieves a batch with its report.
func (r *SQLRepository) GetBatch(ctx context.Context, id string) (*domain.ProcessingBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ?`

	b, err := scanBatch(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBatches returns the most recent batches first.
func (r *SQLRepository) ListBatches(ctx context.Context, limit int) ([]*domain.ProcessingBatch, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY created_at DESC, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.ProcessingBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanBatch(s rowScanner) (*domain.ProcessingBatch, error) {
	var b domain.ProcessingBatch
	var status string
	var report sql.NullString
	var startedAt, finishedAt sql.NullTime

	if err := s.Scan(
		&b.ID, &b.Filename, &b.FileHash, &b.SubmittedBy, &b.AsOf, &status, &b.Error, &report,
		&b.CreatedAt, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}

	b.Status = domain.BatchStatus(status)
	b.AsOf = b.AsOf.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.StartedAt = timePtr(startedAt)
	b.FinishedAt = timePtr(finishedAt)

	if report.Valid && report.String != "" {
		var rep domain.BatchReport
		if err := json.Unmarshal([]byte(report.String), &rep); err != nil {
			return nil, fmt.Errorf("failed to parse report for batch %s: %w", b.ID, err)
		}
		b.Report = &rep
	}
	return &b, nil
}
