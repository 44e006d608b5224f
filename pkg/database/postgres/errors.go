package pg

import (
	"database/sql"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// CheckNoRows maps sql.ErrNoRows onto the store's own not found error.
func CheckNoRows(err, notFound error) error {
	if IsNoRows(err) {
		return notFound
	}
	return err
}

func IsNoRows(err error) bool {
	return err != nil && errors.Is(err, sql.ErrNoRows)
}

// IsSerializationFailure reports whether err was caused by a conflicting
// concurrent transaction, in which case the whole transaction may be rerun.
// Deadlocks are resolved by postgres aborting one side, so they count too.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return true
	}
	return false
}
