package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryReadSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	value, err := RetryRead(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transport("test", errors.New("connection reset"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, value)
	require.Equal(t, 3, calls)
}

func TestRetryReadStopsOnNotFound(t *testing.T) {
	calls := 0
	_, err := RetryRead(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, calls)
}

func TestRetryReadExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := RetryRead(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}
