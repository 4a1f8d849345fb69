package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial tcp: connection refused")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var delays []time.Duration
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errDial
		}
		return nil
	}, WithInitialDelay(0), WithJitter(0), WithOnRetry(func(_ int, _ error, d time.Duration) {
		delays = append(delays, d)
	}))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errDial)
	}, WithInitialDelay(0))

	assert.Equal(t, errDial, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(errDial)))
	assert.Nil(t, Permanent(nil))
}

func TestDo_RetryIfAndExhaustion(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errDial
	}, WithMaxAttempts(4), WithInitialDelay(0), WithRetryIf(func(err error) bool { return errors.Is(err, errDial) }))
	assert.ErrorIs(t, err, errDial)
	assert.Equal(t, 4, calls)

	calls = 0
	other := errors.New("bad password")
	err = Do(context.Background(), func(context.Context) error {
		calls++
		return other
	}, WithInitialDelay(0), WithRetryIf(func(err error) bool { return errors.Is(err, errDial) }))
	assert.Equal(t, other, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	n, err := DoWithData(context.Background(), func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDelayGrowsAndCaps(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 3*time.Second, r.delay(3))

	opts := DatabaseRetrier(nil)
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	assert.Equal(t, 5, cfg.MaxAttempts)
}
