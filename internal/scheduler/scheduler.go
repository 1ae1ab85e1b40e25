// Package scheduler runs deferred in-process tasks keyed by name. It backs
// the cash auto-confirm timer: tasks re-check current state before applying
// any effect, so a fired timer whose order moved on is a no-op.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const taskTimeout = 30 * time.Second

// Task is a deferred unit of work. The context carries a deadline; the task
// owns its own guard reads.
type Task func(ctx context.Context)

// Scheduler defers tasks by key. Scheduling a key that is already pending
// replaces the earlier timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	logger  *zap.Logger
}

// Module wires the scheduler and stops pending timers on shutdown.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.Stop()
				return nil
			},
		})
	}),
)

// New constructs a Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		logger: logger,
	}
}

// Schedule runs task after delay. A pending task under the same key is
// cancelled first.
func (s *Scheduler) Schedule(key string, delay time.Duration, task Task) {
	if task == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("scheduler stopped; dropping task", zap.String("key", key))

		return
	}

	if timer, ok := s.timers[key]; ok {
		timer.Stop()
	}

	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		task(ctx)
	})
}

// Cancel drops a pending task, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// Stop cancels every pending timer. Tasks already due are skipped; their
// effects are re-derivable from stored state on the next pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
