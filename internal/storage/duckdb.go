package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/lyre/internal/cache"
	"github.com/kyleking/lyre/internal/logging"
	"github.com/kyleking/lyre/internal/query"
)

// InMemory opens a private in-memory database
const InMemory = ""

// Options tunes the connection pool and query behaviour
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// QueryTimeout bounds every read issued through Query; zero means no bound.
	QueryTimeout time.Duration
	// SchemaCacheSize bounds the introspector's per-table cache.
	SchemaCacheSize int
	Logger          *logging.Logger
}

// DefaultOptions matches the pool settings of the default configuration
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		SchemaCacheSize: cache.DefaultSize,
	}
}

// Store is the DuckDB-backed row source: it builds Queryables, performs
// table writes and answers schema questions.
type Store struct {
	db           *sqlx.DB
	path         string
	queryTimeout time.Duration
	introspector *Introspector
	logger       *logging.Logger
}

// Open opens (creating if needed) the database at dbPath
func Open(dbPath string, opts Options) (*Store, error) {
	if dbPath != InMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newStore(db, dbPath, opts)
}

// NewWithDB wraps an existing handle, for tests with a mocked driver
func NewWithDB(db *sqlx.DB, opts Options) (*Store, error) {
	return newStore(db, "", opts)
}

func newStore(db *sqlx.DB, path string, opts Options) (*Store, error) {
	introspector, err := NewIntrospector(db, opts.SchemaCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		path:         path,
		queryTimeout: opts.QueryTimeout,
		introspector: introspector,
		logger:       opts.Logger.Component("storage"),
	}, nil
}

// Initialize applies pending migrations and drops cached table schemas
func (s *Store) Initialize(ctx context.Context) error {
	if err := NewMigrationManager(s.db, s.logger).MigrateUp(ctx); err != nil {
		return err
	}

	s.introspector.Reset()

	return nil
}

// Migrations returns a migration manager bound to this store
func (s *Store) Migrations() *MigrationManager {
	return NewMigrationManager(s.db, s.logger)
}

// Introspector answers column questions from information_schema
func (s *Store) Introspector() *Introspector {
	return s.introspector
}

// Query starts an unfiltered Queryable over table
func (s *Store) Query(table string) query.Queryable {
	return newSQLQuery(s, table)
}

// Path returns the database path, empty for in-memory databases
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, s.queryTimeout)
}
