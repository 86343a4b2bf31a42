package repository

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/opensource-finance/bonusledger/internal/domain"
	_ "modernc.org/sqlite"
)

// sqliteBusyTimeoutMS bounds how long a writer waits for the database lock.
// Fingerprint inserts from a worker and a concurrent sync upload (or a second
// process on the same file) serialize on it instead of failing with
// SQLITE_BUSY, which would mark the document failed.
const sqliteBusyTimeoutMS = 5000

// openSQLite opens the community-tier store.
// Uses modernc.org/sqlite for pure Go implementation (no CGO required).
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./bonusledger.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// sqliteDSN builds the connection string. WAL lets batch listings read while
// a run commits documents; foreign keys guard contract and bonus references.
func sqliteDSN(path string) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "synchronous(NORMAL)")
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMS))
	pragmas.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + pragmas.Encode()
}
