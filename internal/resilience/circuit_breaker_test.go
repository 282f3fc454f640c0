package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOpenAfterThreshold(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3, SleepWindow: 50 * time.Millisecond, SuccessThreshold: 1})
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error { return failing })
	}
	assert.Equal(t, Open, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, SuccessThreshold: 1})
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, Open, cb.State())

	time.Sleep(20 * time.Millisecond)
	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Closed, cb.State())
}

func TestRetry_StopsOnFirstSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
