// Package repository persists users, centers and uploads with gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/eco-collect/internal/retry"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicate     = errors.New("duplicate record")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUserNameTaken = errors.New("username already taken")
)

// AutoMigrate creates or updates the schema from the models. Postgres
// deployments use the goose migrations instead.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&User{}, &Center{}, &Upload{})
}

// retrier runs database operations, retrying the ones that failed for
// transient reasons (serialization failures, deadlocks, dropped connections).
type retrier struct {
	retry.Retrier
}

func newRetrier(logger *zap.Logger) retrier {
	return retrier{retry.Retrier{
		Logger:         logger,
		Attempts:       3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Retryable:      isTransientError,
		Expected:       isDomainError,
	}}
}

func (r *retrier) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return r.Do(ctx, operation, requestID, fn)
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrUserNameTaken)
}

func isTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.TransactionRollback,
			pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.CannotConnectNow:
			return true
		}
		return false
	}

	return retry.Transient(err)
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicate
	}
	return err
}
