package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalSchedulerRunsUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, 5*time.Millisecond)
	s.Name = "test"

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if runs.Add(1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestIntervalSchedulerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(ctx, time.Hour)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	go s.Start(func() {
		ran <- struct{}{}
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run did not happen")
	}
}

func TestIntervalSchedulerRejectsBadInterval(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), 0)
	done := make(chan struct{})
	go func() {
		s.Start(func() { t.Error("task must not run") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval must return")
	}
}
