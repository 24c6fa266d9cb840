package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contextTxKey struct{}

// TxManager runs functions inside a database transaction. Stores pick the
// transaction up from the context, so a store call made with the context
// passed to fn joins the transaction.
type TxManager struct {
	db *gorm.DB
}

// NewTxManager creates a transaction manager
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// InTx executes fn in a transaction; a non-nil error rolls it back.
func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, contextTxKey{}, tx))
	})
}

// conn returns the transaction carried by ctx, or db bound to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// inTx reports whether ctx carries a transaction.
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(contextTxKey{}).(*gorm.DB)
	return ok
}

// forUpdate locks selected rows when running on PostgreSQL inside a transaction.
// SQLite serializes writers on its own.
func forUpdate(ctx context.Context, db *gorm.DB) *gorm.DB {
	if inTx(ctx) && db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
