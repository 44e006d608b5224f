package pg

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/retry"
)

var (
	ErrAlreadyInTx       = errors.New("already executing in existing db tx")
	ErrNotInTx           = errors.New("not executing in existing db tx")
	ErrIsolationTooWeak  = errors.New("existing db tx doesn't meet isolation level requirements")
	errInvalidTxInCtx    = errors.New("invalid db tx state in context")
	defaultIsolation     = sql.LevelReadCommitted
	maxSerializationRuns = uint(8)
)

// scopedTx is the transaction carried through a context by ExecuteTxWithinCtx.
type scopedTx struct {
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
}

type scopedTxKey struct{}

// ExecuteRetryable runs fn again for as long as it fails with a serialization
// failure, up to a fixed number of runs. Any other error is returned as is.
func ExecuteRetryable(fn func() error) error {
	_, err := retry.Retry(
		fn,
		retry.Limit(maxSerializationRuns),
		retry.RetriableFunc(IsSerializationFailure),
	)
	return err
}

// ExecuteTxWithinCtx opens a transaction, attaches it to the context handed to
// fn, and commits it when fn succeeds. Store calls made with that context join
// the transaction through ExecuteInTx. Nesting is not supported.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	if ctx.Value(scopedTxKey{}) != nil {
		return ErrAlreadyInTx
	}

	isolation = normalizeIsolation(isolation)
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, scopedTxKey{}, &scopedTx{tx: tx, isolation: isolation})
	return finish(tx, fn(ctx))
}

// ExecuteInTx runs fn inside the transaction attached to ctx, if any. Otherwise
// it opens a transaction of its own and is responsible for finishing it.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = normalizeIsolation(isolation)

	existing, err := txFromContext(ctx, isolation)
	switch {
	case err == nil:
		return fn(existing)
	case err != ErrNotInTx:
		return err
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	return finish(tx, fn(tx))
}

// finish commits tx when err is nil. On failure the transaction is rolled back
// so the connection is returned to the pool, and err is passed through.
func finish(tx *sqlx.Tx, err error) error {
	if err == nil {
		return tx.Commit()
	}
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return errors.Wrap(rollbackErr, "failed to rollback transaction")
	}
	return err
}

func txFromContext(ctx context.Context, desired sql.IsolationLevel) (*sqlx.Tx, error) {
	raw := ctx.Value(scopedTxKey{})
	if raw == nil {
		return nil, ErrNotInTx
	}

	scoped, ok := raw.(*scopedTx)
	if !ok || scoped.tx == nil {
		return nil, errInvalidTxInCtx
	}
	if scoped.isolation < desired {
		return nil, ErrIsolationTooWeak
	}
	return scoped.tx, nil
}

func normalizeIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return defaultIsolation
	}
	return isolation
}
