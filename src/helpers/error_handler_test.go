package helpers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("fetch EURUSD: %w", NewConnectivityError("provider unreachable", cause))

	assert.True(t, IsConnectivityError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch EURUSD: provider unreachable: dial tcp: refused", err.Error())

	var pErr *PersistenceError
	assert.False(t, errors.As(err, &pErr))
	assert.True(t, errors.As(NewPersistenceError("write", nil), &pErr))
	assert.Equal(t, "write", pErr.Error())
}

func TestIsBusyError(t *testing.T) {
	assert.False(t, IsBusyError(nil))
	assert.True(t, IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusyError(errors.New("SQLITE_BUSY")))
	assert.False(t, IsBusyError(errors.New("no such table")))
}

func TestRetryWithBackoff(t *testing.T) {
	testCases := []struct {
		name      string
		failures  int
		retries   int
		retryable func(error) bool
		wantCalls int
		wantErr   bool
	}{
		{name: "first try succeeds", failures: 0, retries: 3, wantCalls: 1},
		{name: "succeeds after two failures", failures: 2, retries: 3, wantCalls: 3},
		{name: "gives up after max retries", failures: 5, retries: 3, wantCalls: 3, wantErr: true},
		{
			name:      "non retryable stops immediately",
			failures:  5,
			retries:   3,
			retryable: func(error) bool { return false },
			wantCalls: 1,
			wantErr:   true,
		},
		{name: "zero retries still runs once", failures: 0, retries: 0, wantCalls: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), tc.retries, time.Millisecond, tc.retryable, func() error {
				calls++
				if calls <= tc.failures {
					return errors.New("database is locked")
				}
				return nil
			})
			assert.Equal(t, tc.wantCalls, calls)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, 5, time.Hour, nil, func() error {
		calls++
		return errors.New("busy")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
