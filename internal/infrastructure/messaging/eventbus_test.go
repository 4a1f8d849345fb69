package messaging

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventStudentFailed, func(shared.Event) error {
		typed++
		return errors.New("handler failure is not returned")
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStudentFailedEvent("run", "s1", errors.New("boom"))))
	require.NoError(t, bus.Publish(shared.NewCohortAuditedEvent("run", "物联网工程", 10, 0)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	st := bus.Stats()
	assert.Equal(t, int64(2), st.TotalPublished)
	assert.Equal(t, int64(3), st.HandlerRuns)
	assert.Equal(t, int64(1), st.HandlerFailures)
}

func TestInMemoryEventBus_AsyncDrain(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var n atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventConsistencyViolation, func(shared.Event) error {
		n.Add(1)
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewConsistencyViolationEvent("run", i+1, "s", "m", 60, 70)))
	}
	bus.Drain()
	assert.Equal(t, int64(20), n.Load())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewCohortAuditedEvent("run", "m", 1, 0)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventRunStarted, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_PanicRecovered(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))
	assert.NoError(t, bus.Publish(shared.NewRunStartedEvent("run", "m", 3, 60, 90, true)))
	assert.Equal(t, int64(1), bus.Stats().HandlerFailures)

	assert.Error(t, bus.Subscribe(shared.EventRunStarted, nil))
	assert.Error(t, bus.Publish(nil))
}
