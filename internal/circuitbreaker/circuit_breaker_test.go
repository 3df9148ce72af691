package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(maxFailures int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(&Config{Name: "test", MaxFailures: maxFailures, Cooldown: cooldown})
	cb.now = func() time.Time { return now }
	cb.lastStateChange = now
	return cb, &now
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	// a success resets the streak
	require.NoError(t, cb.Execute(ctx, succeed))
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, 1, cb.GetStats().Rejected)
}

func TestCircuitBreaker_ProbeAfterCooldown(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	require.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(61 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState(), "failed probe reopens")

	assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	*now = now.Add(61 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())

	stats := cb.GetStats()
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Equal(t, 2, stats.TotalFailures)
	assert.Equal(t, 0, stats.ConsecutiveFails)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(ctx, succeed))
}
