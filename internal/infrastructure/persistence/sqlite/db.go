package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/application/port"
)

// Migrations holds the checkpoint schema, applied by database.Migrator
//
//go:embed migrations/*.sql
var Migrations embed.FS

type txKey struct{}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger      *zap.Logger
	busyRetries int
	busyDelay   time.Duration
}

// Option configures DB
type Option func(*DB)

// WithBusyRetry sets how often a transaction that hit a locked database is
// retried and the delay before each retry
func WithBusyRetry(retries int, delay time.Duration) Option {
	return func(db *DB) {
		db.busyRetries = retries
		db.busyDelay = delay
	}
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger, opts ...Option) *DB {
	db := &DB{
		DB:          sqlDB,
		logger:      logger,
		busyRetries: 3,
		busyDelay:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WithTransaction runs fn in a transaction carried by the context. Nested
// calls join the outer transaction. A top-level transaction that fails
// with SQLITE_BUSY or SQLITE_LOCKED is rolled back and run again.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	for attempt := 0; ; attempt++ {
		err := db.runTx(ctx, fn)
		if err == nil || !IsBusy(err) || attempt >= db.busyRetries {
			return err
		}

		db.logger.Warn("Database busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(db.busyDelay * time.Duration(attempt+1)):
		}
	}
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Executor returns the transaction in ctx, or the database itself
func (db *DB) Executor(ctx context.Context) Querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db.DB
}

func extractTx(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Querier covers both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IsBusy reports whether err comes from a locked database
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var _ port.TransactionManager = (*DB)(nil)
