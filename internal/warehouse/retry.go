package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duckmesh/tabletalk/internal/observability"
)

// IsTransient reports whether err is a connection-level failure worth
// retrying: network timeouts and failed dials count, other network errors
// and query errors such as bad syntax or unknown columns do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		}
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration

	// NewBackOff overrides the exponential schedule; tests use a zero backoff.
	NewBackOff func() backoff.BackOff
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, MinWait: 2 * time.Second, MaxWait: 10 * time.Second}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.MinWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if p.MaxWait > 0 {
		b.MaxInterval = p.MaxWait
	}
	return b
}

// Retry runs op until it succeeds, fails with a non-transient error, or the
// policy's attempts are spent. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	tries := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		if tries > 1 {
			observability.IncrementWarehouseRetry()
		}
		value, err := op()
		if err != nil && !IsTransient(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	},
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return result, permanent.Unwrap()
		}
		return result, err
	}
	return result, nil
}
