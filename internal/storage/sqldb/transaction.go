package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type ctxKey struct{}

// TransactionManager runs seen state writes in one transaction. A call made with a context
// that already carries a transaction joins it: with sqlite's single pooled connection a
// nested BeginTx would block forever.
type TransactionManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

func NewTransactionManager(db *sqlx.DB, opts *sql.TxOptions) *TransactionManager {
	return &TransactionManager{db: db, opts: opts}
}

// txOptionsFor picks isolation per driver. modernc sqlite only accepts the default level.
func txOptionsFor(driver string) *sql.TxOptions {
	if driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return nil
}

func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if GetTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTxx(ctx, tm.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, ctxKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func GetTxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(ctxKey{}).(*sqlx.Tx)
	return tx
}

// GetExecutor returns the transaction carried by ctx, or db outside one.
func GetExecutor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := GetTxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
