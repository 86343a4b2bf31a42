package repository

// Schema definitions for the bonusledger database.
// Compatible with both SQLite and PostgreSQL.

// Catalogue tables are owned by the registration and management subsystems.
const schemaCatalogue = `
CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS brands (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    prefix TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contracts (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    valid_from TIMESTAMP NOT NULL,
    valid_to TIMESTAMP,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_contracts_client ON contracts(client_id);

CREATE TABLE IF NOT EXISTS brand_bonuses (
    id TEXT PRIMARY KEY,
    contract_id TEXT NOT NULL REFERENCES contracts(id),
    brand_id TEXT NOT NULL REFERENCES brands(id),
    name TEXT NOT NULL DEFAULT '',
    ratio TEXT NOT NULL,
    valid_from TIMESTAMP,
    valid_to TIMESTAMP,
    UNIQUE (contract_id, brand_id)
);
`

// The UNIQUE constraint is the transaction fingerprint.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS points_transactions (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    client_code TEXT NOT NULL,
    brand_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    reference_document_id TEXT NOT NULL DEFAULT '',
    amount BIGINT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    value TEXT NOT NULL,
    ratio TEXT NOT NULL,
    document_date TIMESTAMP,
    batch_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (client_id, document_id, brand_id)
);

CREATE INDEX IF NOT EXISTS idx_points_tx_client ON points_transactions(client_code);
CREATE INDEX IF NOT EXISTS idx_points_tx_batch ON points_transactions(batch_id);
CREATE INDEX IF NOT EXISTS idx_points_tx_grant ON points_transactions(client_id, brand_id, kind);
`

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    file_hash TEXT NOT NULL DEFAULT '',
    submitted_by TEXT NOT NULL DEFAULT '',
    as_of TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    report TEXT,
    created_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(created_at);
`

const schemaLineRules = `
CREATE TABLE IF NOT EXISTS line_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCatalogue,
		schemaTransactions,
		schemaBatches,
		schemaLineRules,
	}
}
