package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// Conn returns the transaction carried by ctx, or db when there is none.
// Stores call it for every statement so that they join the caller's transaction.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTransaction reports whether ctx carries an open transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// TxRunner is implemented by Transactor; services depend on it so tests can run
// their unit of work without a database.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transactor runs units of work inside a single database transaction
type Transactor struct {
	db *sql.DB
}

// NewTransactor creates a transactor over db
func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

// InTx runs fn with a context carrying a transaction. The transaction commits when
// fn returns nil and rolls back otherwise (including on panic). A nested call joins
// the outer transaction instead of opening a new one.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTransaction(ctx) {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
