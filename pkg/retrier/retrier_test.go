package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxAttempts(3))

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxAttempts(2))

	permanent := errors.New("permanent")
	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 2, attempts)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	r := New(WithInitialInterval(time.Hour), WithMaxAttempts(5))

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(context.Context) error {
			attempts++
			return errors.New("always fails")
		})
	}()

	// cancel while the retrier waits out its first pause
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("retrier kept waiting after cancellation")
	}
}

func TestDoWithData(t *testing.T) {
	r := New(WithInitialInterval(time.Millisecond), WithMaxAttempts(2))

	calls := 0
	value, err := DoWithData(r, context.Background(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, value)
}
