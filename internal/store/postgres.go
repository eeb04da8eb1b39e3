package store

import (
	"database/sql"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists LeadPipe data in PostgreSQL.
type PostgresStore struct {
	*sqlStore
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and applies the schema.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	st, err := openSQL(cfg.DSN, dbSetup{
		name:       "PostgresStore",
		driver:     "postgres",
		migrations: postgresMigrations,
		rebind:     rebindDollar,
		configure: func(db *sql.DB) {
			db.SetMaxOpenConns(DefaultMaxOpenConns)
			db.SetMaxIdleConns(DefaultMaxIdleConns)
			db.SetConnMaxLifetime(DefaultConnMaxLifetime)
		},
	})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{sqlStore: st}, nil
}

// OutboxRepo returns the store as an OutboxRepo.
func (s *PostgresStore) OutboxRepo() OutboxRepo { return s.sqlStore }

// DedupRepo returns the store as a DedupRepo.
func (s *PostgresStore) DedupRepo() DedupRepo { return s.sqlStore }
