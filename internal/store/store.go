package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/sirupsen/logrus"
)

// Querier is the subset of *sql.DB and *sql.Tx that table code uses.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table is implemented by every entity table so the store can create,
// upgrade and verify it.
type Table interface {
	// Name is the SQL table name.
	Name() string

	// Create issues the DDL for the current schema version. It must be
	// idempotent (CREATE TABLE IF NOT EXISTS).
	Create(ctx context.Context, q Querier) error

	// Upgrade brings the table from version from to the current version.
	Upgrade(ctx context.Context, q Querier, from int) error
}

// Config controls how a database is opened.
type Config struct {
	// TargetVersion is the schema version the caller's tables implement.
	TargetVersion int

	// Tables are created, upgraded and verified in this order.
	Tables []Table

	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration

	// Logger receives schema and transaction diagnostics.
	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults. Tables and TargetVersion must
// still be filled in by the caller.
func DefaultConfig() *Config {
	return &Config{
		BusyTimeout: 5 * time.Second,
		Logger:      logrus.StandardLogger().WithField("component", "store"),
	}
}

// DB wraps the SQLite connection and its schema bookkeeping.
type DB struct {
	conn    *sql.DB
	path    string
	version int
	logger  logrus.FieldLogger
}

// Open opens or creates the database at path and brings it to
// targetVersion using tables.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("auditpro.db", tables.SchemaVersion, tables.All()...)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, targetVersion int, tables ...Table) (*DB, error) {
	cfg := DefaultConfig()
	cfg.TargetVersion = targetVersion
	cfg.Tables = tables
	return OpenWithConfig(context.Background(), path, cfg)
}

// OpenWithConfig opens the database with custom configuration.
func OpenWithConfig(ctx context.Context, path string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(cfg.Tables) == 0 {
		return nil, ErrNoTables
	}
	if cfg.TargetVersion < 1 {
		return nil, fmt.Errorf("invalid target version %d", cfg.TargetVersion)
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection gets them
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, cfg.BusyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		logger: cfg.Logger,
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.migrate(ctx, cfg.TargetVersion, cfg.Tables); err != nil {
		_ = db.Close()
		return nil, err
	}
	db.version = cfg.TargetVersion

	return db, nil
}

// migrate brings the file from its stored version to target.
func (db *DB) migrate(ctx context.Context, target int, tables []Table) error {
	current, err := db.userVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case current == target:
		return db.verify(ctx, tables)
	case current > target:
		return fmt.Errorf("%w: file is at version %d, this build supports %d", ErrNewerSchema, current, target)
	}

	log := db.logger.WithFields(logrus.Fields{"from": current, "to": target, "path": db.path})
	if current == 0 {
		log.Info("creating schema")
	} else {
		log.Info("upgrading schema")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if current == 0 {
			if err := t.Create(ctx, tx); err != nil {
				log.WithError(err).WithField("table", t.Name()).Error("create failed")
				return &SchemaError{Table: t.Name(), Op: "create", Err: err}
			}
			continue
		}
		if err := t.Upgrade(ctx, tx, current); err != nil {
			log.WithError(err).WithField("table", t.Name()).Error("upgrade failed")
			return &SchemaError{Table: t.Name(), Op: "upgrade", From: current, Err: err}
		}
	}

	// user_version is part of the file header, so it commits with the DDL
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

// verify recreates any table that has gone missing from a file already at
// the target version.
func (db *DB) verify(ctx context.Context, tables []Table) error {
	var missing []Table
	for _, t := range tables {
		ok, err := db.TableExists(ctx, t.Name())
		if err != nil {
			return &SchemaError{Table: t.Name(), Op: "verify", Err: err}
		}
		if !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range missing {
			db.logger.WithField("table", t.Name()).Warn("recreating missing table")
			if err := t.Create(ctx, tx); err != nil {
				return &SchemaError{Table: t.Name(), Op: "create", Err: err}
			}
		}
		return nil
	})
}

func (db *DB) userVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// TableExists reports whether a table with the given name is present.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if err := db.conn.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	return count == 1, nil
}

// Version returns the schema version the database was opened at.
func (db *DB) Version() int {
	return db.version
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// Logger returns the logger the store was opened with.
func (db *DB) Logger() logrus.FieldLogger {
	return db.logger
}

// Querier returns the connection for statements that run outside a
// transaction.
func (db *DB) Querier() Querier {
	return db.conn
}

// BeginTx starts a transaction. The caller owns Commit and Rollback.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// WithTx runs fn inside a transaction. Any error from fn, or a panic, rolls
// the transaction back; otherwise it is committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.WithError(err).Warn("failed to checkpoint WAL")
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}
