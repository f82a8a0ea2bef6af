// Package retry re-runs store operations that failed for transient reasons
// such as SQLite busy locks or MySQL deadlocks.
package retry

import (
	"context"
	"database/sql/driver"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/flowstate/db"
	"github.com/teranos/flowstate/errors"
	"github.com/teranos/flowstate/logger"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxAttempts includes the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// PerSecond paces attempts; 0 means no pacing.
	PerSecond float64
	// Logger is optional.
	Logger *zap.SugaredLogger
}

// Retryable reports whether err is worth another attempt. Lookups that found
// nothing, rejected requests, conflicts and encode/decode failures fail the
// same way every time and are never retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.IsNotFoundError(err), errors.IsInvalidRequestError(err), errors.IsConflictError(err):
		return false
	case db.IsDatabaseClosed(err):
		return false
	}
	return db.IsTransient(err) || errors.Is(err, driver.ErrBadConn)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error is returned unchanged in identity.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	limit := rate.Inf
	if p.PerSecond > 0 {
		limit = rate.Limit(p.PerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)
	log := p.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if waitErr := limiter.Wait(ctx); waitErr != nil {
			if err == nil {
				return errors.Wrap(waitErr, "retry")
			}
			return errors.WithSecondaryError(err, waitErr)
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if attempt < attempts {
			log.Debugw("Retrying after transient failure",
				logger.FieldAttempt, attempt,
				"max_attempts", attempts,
				logger.FieldError, err,
			)
		}
	}

	log.Warnw("Giving up after transient failures",
		"max_attempts", attempts,
		logger.FieldError, err,
	)
	return errors.Wrapf(err, "after %d attempts", attempts)
}
