package database

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txContextKey string

const txKey = txContextKey("tx-context-key")

// Manager runs functions inside a database transaction. The transaction is
// carried in the context so that repositories join it transparently via
// FromContext.
type Manager struct {
	db     *sqlx.DB
	logger ectologger.Logger
}

// NewManager creates a transaction manager.
func NewManager(db *sqlx.DB, logger ectologger.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// WithTransaction begins a transaction, runs fn with it bound to the context,
// and commits. Any error from fn rolls the whole transaction back. If the
// context already carries a transaction, fn joins it and the outer caller
// owns commit/rollback.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return err
	}

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.WithContext(ctx).WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	return tx.Commit()
}

// TxFromContext returns the transaction bound to the context, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

// FromContext returns the executor to run queries against: the ambient
// transaction when one is bound to the context, the connection pool otherwise.
func FromContext(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db
}
