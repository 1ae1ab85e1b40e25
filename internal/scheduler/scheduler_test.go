package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestScheduleRuns(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("order:1", 10*time.Millisecond, func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
}

func TestCancelPreventsRun(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var fired atomic.Bool
	s.Schedule("order:2", 20*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})
	s.Cancel("order:2")

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestRescheduleReplacesTimer(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Stop()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		s.Schedule("order:3", 20*time.Millisecond, func(ctx context.Context) {
			count.Add(1)
		})
	}

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestStopDropsPending(t *testing.T) {
	s := New(zap.NewNop())

	var fired atomic.Bool
	s.Schedule("order:4", 20*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())

	// Scheduling after stop is a no-op.
	s.Schedule("order:5", time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})
	time.Sleep(30 * time.Millisecond)
	assert.False(t, fired.Load())
}
