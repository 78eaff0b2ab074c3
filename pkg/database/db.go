package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

// DB is the query surface shared by repositories. Calls made with a context
// that carries an open transaction are routed through that transaction, so a
// caller that starts a transaction with GetTx gets atomicity across every
// repository it invokes with the returned context.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

type DatabaseInstance struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) *DatabaseInstance {
	return &DatabaseInstance{
		db:     db,
		logger: logger,
	}
}

// Sqlx exposes the underlying pool for health checks and connection tuning.
func (d *DatabaseInstance) Sqlx() *sqlx.DB {
	return d.db
}

func (d *DatabaseInstance) SetPoolLimits(maxOpen, maxIdle int, maxLifetime time.Duration) {
	d.db.SetMaxOpenConns(maxOpen)
	d.db.SetMaxIdleConns(maxIdle)
	d.db.SetConnMaxLifetime(maxLifetime)
}

func (d *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return d.db.ExecContext(ctx, query, args...)
}

func (d *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return d.db.GetContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if tx := txFromContext(ctx); tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return d.db.SelectContext(ctx, dest, query, args...)
}

func (d *DatabaseInstance) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryxContext(ctx, query, args...)
	}
	return d.db.QueryxContext(ctx, query, args...)
}

func (d *DatabaseInstance) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.NamedExecContext(ctx, query, arg)
	}
	return d.db.NamedExecContext(ctx, query, arg)
}

func (d *DatabaseInstance) PingContext(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DatabaseInstance) Close() error {
	return d.db.Close()
}

func (d *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return getTx(ctx, d.logger, d.db, opts)
}
