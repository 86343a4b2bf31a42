// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record conflicts with existing state")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// GetClientByCode looks up a registered client by its ERP client number.
func (r *SQLRepository) GetClientByCode(ctx context.Context, code string) (*domain.Client, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: client code is required", ErrInvalidInput)
	}

	query := `SELECT id, code, name FROM clients WHERE code = ?`

	var c domain.Client
	err := r.db.QueryRowContext(ctx, r.rebind(query), code).Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContracts returns a client's contracts, newest first.
func (r *SQLRepository) ListContracts(ctx context.Context, clientID string) ([]*domain.Contract, error) {
	query := `
		SELECT id, client_id, valid_from, valid_to, active
		FROM contracts
		WHERE client_id = ?
		ORDER BY valid_from DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []*domain.Contract
	for rows.Next() {
		var c domain.Contract
		var validTo sql.NullTime
		var active int

		if err := rows.Scan(&c.ID, &c.ClientID, &c.ValidFrom, &validTo, &active); err != nil {
			return nil, err
		}
		c.ValidTo = fromNullTime(validTo)
		c.Active = active == 1
		contracts = append(contracts, &c)
	}

	return contracts, rows.Err()
}

// ListBrandBonuses returns the brand bonuses attached to a contract.
func (r *SQLRepository) ListBrandBonuses(ctx context.Context, contractID string) ([]*domain.BrandBonus, error) {
	query := `
		SELECT bb.id, bb.contract_id, bb.name, bb.ratio, bb.valid_from, bb.valid_to,
			   b.id, b.name, b.prefix
		FROM brand_bonuses bb
		JOIN brands b ON b.id = bb.brand_id
		WHERE bb.contract_id = ?
		ORDER BY b.prefix, bb.id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bonuses []*domain.BrandBonus
	for rows.Next() {
		var bb domain.BrandBonus
		var validFrom, validTo sql.NullTime

		if err := rows.Scan(
			&bb.ID, &bb.ContractID, &bb.Name, &bb.Ratio, &validFrom, &validTo,
			&bb.Brand.ID, &bb.Brand.Name, &bb.Brand.Prefix,
		); err != nil {
			return nil, err
		}
		bb.ValidFrom = fromNullTime(validFrom)
		bb.ValidTo = fromNullTime(validTo)
		bonuses = append(bonuses, &bb)
	}

	return bonuses, rows.Err()
}

// SaveClient inserts or updates a client.
func (r *SQLRepository) SaveClient(ctx context.Context, c *domain.Client) error {
	if c.ID == "" || c.Code == "" {
		return fmt.Errorf("%w: client id and code are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO clients (id, code, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), c.ID, c.Code, c.Name, time.Now().UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: client code %s already registered", ErrConflict, c.Code)
	}
	return err
}

// SaveContract inserts or updates a contract.
func (r *SQLRepository) SaveContract(ctx context.Context, c *domain.Contract) error {
	if c.ID == "" || c.ClientID == "" {
		return fmt.Errorf("%w: contract id and client id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO contracts (id, client_id, valid_from, valid_to, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			active = excluded.active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.ClientID, c.ValidFrom.UTC(), nullTime(c.ValidTo), boolToInt(c.Active),
	)
	return err
}

// SaveBrand inserts or updates a brand.
func (r *SQLRepository) SaveBrand(ctx context.Context, b *domain.Brand) error {
	if b.ID == "" {
		return fmt.Errorf("%w: brand id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO brands (id, name, prefix)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			prefix = excluded.prefix
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), b.ID, b.Name, b.Prefix)
	return err
}

// SaveBrandBonus inserts or updates a brand bonus. A contract carries at
// most one bonus per brand.
func (r *SQLRepository) SaveBrandBonus(ctx context.Context, b *domain.BrandBonus) error {
	if b.ID == "" || b.ContractID == "" || b.Brand.ID == "" {
		return fmt.Errorf("%w: bonus id, contract id and brand id are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO brand_bonuses (id, contract_id, brand_id, name, ratio, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			contract_id = excluded.contract_id,
			brand_id = excluded.brand_id,
			name = excluded.name,
			ratio = excluded.ratio,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		b.ID, b.ContractID, b.Brand.ID, b.Name, b.Ratio.String(),
		nullTime(b.ValidFrom), nullTime(b.ValidTo),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: contract %s already has a bonus for brand %s", ErrConflict, b.ContractID, b.Brand.ID)
	}
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// isUniqueViolation recognises unique/primary key violations from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
