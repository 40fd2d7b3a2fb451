package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bad conn", err: fmt.Errorf("query: %w", driver.ErrBadConn), want: true},
		{name: "connection failure sqlstate", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: true},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: false},
		{name: "undefined column", err: &pgconn.PgError{Code: "42703"}, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "network timeout", err: fmt.Errorf("read: %w", timeoutError{}), want: true},
		{name: "dial refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}, want: true},
		{name: "read reset without timeout", err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRetryRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), zeroPolicy(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, driver.ErrBadConn
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got != 42 || calls != 3 {
		t.Fatalf("Retry() = %d after %d calls", got, calls)
	}
}

func TestRetryStopsAfterAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), zeroPolicy(3), func() (int, error) {
		calls++
		return 0, driver.ErrBadConn
	})
	if !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("Retry() error = %v, want ErrBadConn", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryQueryErrors(t *testing.T) {
	calls := 0
	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	_, err := Retry(context.Background(), zeroPolicy(3), func() (int, error) {
		calls++
		return 0, syntax
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42601" {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestOpenRequiresDSNForPostgres(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func zeroPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		Attempts:   attempts,
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}
