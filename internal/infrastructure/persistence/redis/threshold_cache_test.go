package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/domain/threshold"
	"github.com/butp-hub/destination-predictor/pkg/circuitbreaker"
)

type fakeStore struct {
	data map[string][]byte
	ttls map[string]time.Duration
	err   error
	calls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string, dest any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	b, ok := f.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = b
	f.ttls[key] = ttl
	return nil
}

func TestThresholdCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := NewThresholdCache(store, 0)

	_, err := c.Get(ctx, "abc")
	assert.True(t, errors.Is(err, ErrCacheMiss))

	res := threshold.Result{
		S1: 90, S2: 64, UnknownCredits: 10, Cost1: math.NaN(), Cost2: 40,
		Policy1: threshold.PolicyUnreachable, Policy2: threshold.PolicyFirstLeftOrSingle,
		MissingCourses: []string{"B"},
		Target1Scores:  map[string]float64{},
		Target2Scores:  map[string]float64{"B": 64},
	}
	require.NoError(t, c.Set(ctx, "abc", res))
	assert.Contains(t, store.data, "threshold:abc")
	assert.Equal(t, TTLThresholdResult, store.ttls["threshold:abc"])

	got, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.S1)
	assert.True(t, math.IsNaN(got.Cost1))
	assert.Equal(t, threshold.PolicyUnreachable, got.Policy1)
	assert.Equal(t, 64.0, got.Target2Scores["B"])

	store.err = errors.New("connection refused")
	_, err = c.Get(ctx, "abc")
	assert.True(t, errors.Is(err, shared.ErrServiceUnavailable))
	assert.False(t, errors.Is(err, ErrCacheMiss))
	assert.Error(t, c.Set(ctx, "abc", res))
}

func TestThresholdKeyAndConfig(t *testing.T) {
	assert.Equal(t, "threshold:ff", ThresholdKey("ff"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())

	c := NewThresholdCache(newFakeStore(), time.Minute)
	assert.Equal(t, time.Minute, c.ttl)
}

func TestThresholdCache_BreakerSkipsDeadBackend(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := NewThresholdCache(store, 0).WithBreaker(circuitbreaker.ResultCacheBreaker(IsBackendFailure, nil))

	// misses keep the circuit closed
	for i := 0; i < 5; i++ {
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}

	store.err = errors.New("connection refused")
	for i := 0; i < 3; i++ {
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	}
	require.Equal(t, 8, store.calls)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, 8, store.calls)
	assert.ErrorIs(t, c.Set(ctx, "k", threshold.Result{}), shared.ErrServiceUnavailable)
}
