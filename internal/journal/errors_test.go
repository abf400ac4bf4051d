package journal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassifyWriteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, WriteErrorClassUnknown},
		{"deadline exceeded", context.DeadlineExceeded, WriteErrorClassTimeout},
		{"cancelled", context.Canceled, WriteErrorClassTimeout},
		{"net timeout", timeoutError{}, WriteErrorClassTimeout},
		{"wrapped net timeout", fmt.Errorf("flush: %w", timeoutError{}), WriteErrorClassTimeout},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, WriteErrorClassConnection},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), WriteErrorClassConnection},
		{"connection refused text", errors.New("pq: connection refused"), WriteErrorClassConnection},
		{"broken pipe text", errors.New("write: broken pipe"), WriteErrorClassConnection},
		{"timeout text", errors.New("query timeout reached"), WriteErrorClassTimeout},
		{"sqlite busy", errors.New("SQLITE_BUSY: database is locked"), WriteErrorClassContention},
		{"locked text", errors.New("database is locked"), WriteErrorClassContention},
		{"unique constraint", errors.New(`pq: duplicate key value violates unique constraint "submissions_pkey"`), WriteErrorClassConstraint},
		{"check constraint", errors.New("new row violates check constraint"), WriteErrorClassConstraint},
		{"unknown", errors.New("disk quota exhausted"), WriteErrorClassUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := ClassifyWriteError(tc.err); got != tc.want {
				t.Errorf("ClassifyWriteError(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetrySQLiteBusy(t *testing.T) {
	t.Parallel()

	t.Run("retries transient contention", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		err := retrySQLiteBusy(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("gives up on other errors", func(t *testing.T) {
		t.Parallel()

		attempts := 0
		permanent := errors.New("no such table")
		err := retrySQLiteBusy(context.Background(), func() error {
			attempts++
			return permanent
		})
		if !errors.Is(err, permanent) || attempts != 1 {
			t.Errorf("err = %v, attempts = %d", err, attempts)
		}
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := retrySQLiteBusy(ctx, func() error {
			return errors.New("database is locked")
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
}
