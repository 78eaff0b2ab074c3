package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txKey = txContextKey("tx-context-key")

// Tx wraps sqlx.Tx. Commit and Rollback are no-ops on a transaction joined
// from an outer caller; only the opener closes it.
type Tx interface {
	IsOpen() bool
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

// joinedTx is handed to callers that find an already-open transaction in
// their context. They share the statements but must not close it.
type joinedTx struct {
	*transaction
}

func (joinedTx) Commit(ctx context.Context) error   { return nil }
func (joinedTx) Rollback(ctx context.Context) error { return nil }

func txFromContext(ctx context.Context) *transaction {
	t, ok := ctx.Value(txKey).(*transaction)
	if ok && t != nil && t.IsOpen() {
		return t
	}
	return nil
}

func getTx(ctx context.Context, logger ectologger.Logger, db *sqlx.DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing := txFromContext(ctx); existing != nil {
		return ctx, joinedTx{existing}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := &transaction{
		Tx:     tx,
		logger: logger,
	}

	ctx = context.WithValue(ctx, txKey, newTx)
	return ctx, newTx, nil
}

func (t *transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil // already committed or rolled back
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}
