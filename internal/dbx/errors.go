package dbx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/palette/internal/common"
)

// Postgres SQLSTATE codes that mean "try the whole transaction again".
const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// IsTransient reports whether err is a lock or serialization failure, or a
// statement cancelled by its deadline while waiting.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrTransientStore) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Classify wraps transient failures with common.ErrTransientStore and
// returns every other error unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, common.ErrTransientStore) {
		return err
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %w", common.ErrTransientStore, err)
	}
	return err
}
