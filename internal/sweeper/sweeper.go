// Package sweeper hides paid, confirmed orders from the ordering room once
// their visibility window has elapsed.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/cache"
	"github.com/Additional-Code/roomserve/internal/config"
	orderrepo "github.com/Additional-Code/roomserve/internal/repository/order"
)

const lockKey = "sweep:visibility"

// Store is the slice of the order store the sweeper writes through.
type Store interface {
	MarkExpiredInvisible(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically flips is_visible_to_client on expired orders. A
// redis lock keeps one instance per deployment active; the write itself is
// idempotent, so losing the lock race only skips a redundant pass.
type Sweeper struct {
	store  Store
	locker cache.Store
	cfg    config.Orders
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Sweeper over the order repository.
func New(orders *orderrepo.Repository, locker cache.Store, cfg config.Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:  orders,
		locker: locker,
		cfg:    cfg.Orders,
		logger: logger,
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(runCtx)
			}
		}
	}()

	s.logger.Info("visibility sweeper started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.Duration("window", s.cfg.VisibleWindow),
	)
}

// Stop halts the loop and waits for the in-flight pass.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// SweepOnce performs a single pass. Exposed for the CLI sweep command.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	acquired, err := s.locker.SetNX(ctx, lockKey, []byte("1"), s.cfg.SweepInterval)
	if err != nil {
		s.logger.Warn("sweep lock failed; skipping pass", zap.Error(err))

		return
	}
	if !acquired {
		return
	}

	cutoff := time.Now().UTC().Add(-s.cfg.VisibleWindow)
	hidden, err := s.store.MarkExpiredInvisible(ctx, cutoff)
	if err != nil {
		s.logger.Error("visibility sweep failed", zap.Error(err))

		return
	}
	if hidden > 0 {
		s.logger.Info("orders hidden from client view", zap.Int64("count", hidden))
	}
}

// Module wires the sweeper into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: s.Stop,
		})
	}),
)
