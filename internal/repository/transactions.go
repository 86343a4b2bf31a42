package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/bonusledger/internal/domain"
)

const transactionColumns = `
	id, client_id, client_code, brand_id, document_id, reference_document_id,
	amount, kind, status, description, value, ratio, document_date, batch_id, created_at
`

// CommitDocument writes one document's transactions atomically. The
// fingerprint constraint turns a repeated insert into a no-op, which is
// reported as false in the returned slice.
func (r *SQLRepository) CommitDocument(ctx context.Context, txs []*domain.PointsTransaction) ([]bool, error) {
	inserted := make([]bool, len(txs))
	if len(txs) == 0 {
		return inserted, nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO points_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, document_id, brand_id) DO NOTHING
	`)

	for i, tx := range txs {
		if tx.ID == "" || tx.ClientID == "" || tx.DocumentID == "" || tx.BrandID == "" {
			return nil, fmt.Errorf("%w: transaction id, client, document and brand are required", ErrInvalidInput)
		}

		res, err := dbTx.ExecContext(ctx, query,
			tx.ID, tx.ClientID, tx.ClientCode, tx.BrandID, tx.DocumentID, tx.ReferenceDocumentID,
			tx.Amount, string(tx.Kind), string(tx.Status), tx.Description,
			tx.Value.String(), tx.Ratio.String(), nullTimePtr(tx.DocumentDate),
			tx.BatchID, tx.CreatedAt.UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert %s/%s: %w", tx.DocumentID, tx.BrandID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		inserted[i] = n == 1
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// HasStandardGrant reports whether points were granted for the client and
// brand, optionally restricted to one source document.
func (r *SQLRepository) HasStandardGrant(ctx context.Context, clientID, documentID, brandID string) (bool, error) {
	query := `
		SELECT 1 FROM points_transactions
		WHERE client_id = ? AND brand_id = ? AND kind = ?
	`
	args := []any{clientID, brandID, string(domain.KindStandardPoints)}
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}
	query += ` LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTransaction retrieves a points transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, id string) (*domain.PointsTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM points_transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns transactions matching the filter in creation order.
func (r *SQLRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.PointsTransaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientCode != "" {
		where = append(where, "client_code = ?")
		args = append(args, filter.ClientCode)
	}
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	query := `SELECT ` + transactionColumns + ` FROM points_transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, document_id, brand_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.PointsTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (*domain.PointsTransaction, error) {
	var tx domain.PointsTransaction
	var kind, status string
	var docDate sql.NullTime

	if err := s.Scan(
		&tx.ID, &tx.ClientID, &tx.ClientCode, &tx.BrandID, &tx.DocumentID, &tx.ReferenceDocumentID,
		&tx.Amount, &kind, &status, &tx.Description, &tx.Value, &tx.Ratio, &docDate,
		&tx.BatchID, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}
	tx.Kind = domain.TransactionKind(kind)
	tx.Status = domain.TransactionStatus(status)
	tx.DocumentDate = timePtr(docDate)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nullTime(*t)
}
