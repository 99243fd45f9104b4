package db

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx returns a context carrying tx as the ambient transaction.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the ambient transaction, if any.
func TxFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Conn returns the handle a query should run on: the ambient transaction when
// ctx carries one, otherwise fallback. The result is bound to ctx.
func Conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// Transaction runs fn inside a transaction. When ctx already carries one, fn
// runs in a nested savepoint of it and nothing is committed until the
// outermost transaction commits. Returning an error from fn rolls back
// everything fn did.
func Transaction(ctx context.Context, fallback *gorm.DB, fn func(ctx context.Context) error) error {
	return Conn(ctx, fallback).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
