// Package retry runs operations with exponential backoff, retrying the
// failures a caller classifies as transient.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/logging"
)

// Retrier retries fn up to Attempts times. A nil Retryable never retries.
// Errors matched by Expected are returned at once and not logged.
type Retrier struct {
	Logger         *zap.Logger
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Retryable      func(error) bool
	Expected       func(error) bool
}

// Do runs fn, wrapping any final error in a logging.OperationError.
func (r *Retrier) Do(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	backoff := r.InitialBackoff
	opLogger := logging.WithOperation(logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.MaxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if r.Expected != nil && r.Expected(err) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if r.Retryable == nil || !r.Retryable(err) || attempt == attempts-1 {
			break
		}
		opLogger.Warn("transient error", zap.Error(err), zap.Int("attempt", attempt+1))
	}

	opLogger.Warn("operation failed", zap.Error(err))
	return logging.NewOperationError(operation, requestID, err)
}

// Transient reports deadline and network timeout errors.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
