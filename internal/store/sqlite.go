package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

// sqliteBusyTimeoutMs lets a reader wait out the single writer instead of failing with SQLITE_BUSY.
const sqliteBusyTimeoutMs = "5000"

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists LeadPipe data in an SQLite database file.
type SQLiteStore struct {
	*sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the SQLite database at the configured path.
// Both plain paths and file: URIs are accepted; the parent directory is created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	path := sqlitePath(cfg.DSN)
	if path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("NewSQLiteStore: failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	st, err := openSQL(sqliteDSN(cfg.DSN), dbSetup{
		name:       "SQLiteStore",
		driver:     "sqlite3",
		migrations: sqliteMigrations,
		rebind:     rebindNone,
		// a single connection serializes writers
		configure: func(db *sql.DB) { db.SetMaxOpenConns(1) },
	})
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{sqlStore: st}, nil
}

// sqlitePath strips the file: scheme and query parameters from dsn.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// sqliteDSN adds foreign key enforcement and a busy timeout unless dsn already sets them.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_foreign_keys=") && !strings.Contains(dsn, "_fk=") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout=") && !strings.Contains(dsn, "_timeout=") {
		params = append(params, "_busy_timeout="+sqliteBusyTimeoutMs)
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// OutboxRepo returns the store as an OutboxRepo.
func (s *SQLiteStore) OutboxRepo() OutboxRepo { return s.sqlStore }

// DedupRepo returns the store as a DedupRepo.
func (s *SQLiteStore) DedupRepo() DedupRepo { return s.sqlStore }
