package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, b.State())

	// Open breaker short-circuits without invoking fn.
	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)
	now := time.Now()
	b.nowFn = func() time.Time { return now }

	require.Error(t, b.Do(func() error { return errors.New("x") }))
	require.Equal(t, StateOpen, b.State())

	now = now.Add(20 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)
	now := time.Now()
	b.nowFn = func() time.Time { return now }

	require.Error(t, b.Do(func() error { return errors.New("x") }))
	now = now.Add(20 * time.Millisecond)
	require.Error(t, b.Do(func() error { return errors.New("y") }))
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 2, time.Minute)
	require.Error(t, b.Do(func() error { return errors.New("x") }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errors.New("x") }))
	assert.Equal(t, StateClosed, b.State())
}
