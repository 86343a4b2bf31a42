package domain

import (
	"context"
	"time"
)

// CatalogueReader reads the client/contract/bonus data owned by the
// registration and management subsystems.
type CatalogueReader interface {
	GetClientByCode(ctx context.Context, code string) (*Client, error)
	ListContracts(ctx context.Context, clientID string) ([]*Contract, error)
	ListBrandBonuses(ctx context.Context, contractID string) ([]*BrandBonus, error)
}

// CatalogueWriter is used by the management subsystem and by tests to seed data.
type CatalogueWriter interface {
	SaveClient(ctx context.Context, c *Client) error
	SaveContract(ctx context.Context, c *Contract) error
	SaveBrand(ctx context.Context, b *Brand) error
	SaveBrandBonus(ctx context.Context, b *BrandBonus) error
}

// TransactionStore persists points transactions.
type TransactionStore interface {
	// CommitDocument inserts one document's transactions in a single
	// database transaction. Candidates whose fingerprint already exists are
	// not inserted; the returned slice reports, per input, whether it was.
	CommitDocument(ctx context.Context, txs []*PointsTransaction) ([]bool, error)

	// HasStandardGrant reports whether a STANDARD_POINTS transaction exists
	// for the client and brand. An empty documentID matches any document.
	HasStandardGrant(ctx context.Context, clientID, documentID, brandID string) (bool, error)

	GetTransaction(ctx context.Context, id string) (*PointsTransaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*PointsTransaction, error)
}

// BatchStore persists ProcessingBatch records.
type BatchStore interface {
	CreateBatch(ctx context.Context, b *ProcessingBatch) error
	// StartBatch moves a PENDING batch to RUNNING exactly once.
	StartBatch(ctx context.Context, id string, startedAt time.Time) error
	// FinalizeBatch records the terminal status and report of a RUNNING batch.
	FinalizeBatch(ctx context.Context, b *ProcessingBatch) error
	GetBatch(ctx context.Context, id string) (*ProcessingBatch, error)
	ListBatches(ctx context.Context, limit int) ([]*ProcessingBatch, error)
}

// RuleStore persists line exclusion rules.
type RuleStore interface {
	SaveLineRule(ctx context.Context, rule *LineRule) error
	ListLineRules(ctx context.Context) ([]*LineRule, error)
}

// Repository defines the interface for data persistence.
type Repository interface {
	CatalogueReader
	CatalogueWriter
	TransactionStore
	BatchStore
	RuleStore

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `toml:"driver"`

	// SQLite specific
	SQLitePath string `toml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `toml:"postgres_host"`
	PostgresPort     int    `toml:"postgres_port"`
	PostgresUser     string `toml:"postgres_user"`
	PostgresPassword string `toml:"postgres_password"`
	PostgresDB       string `toml:"postgres_db"`
	PostgresSSLMode  string `toml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}
