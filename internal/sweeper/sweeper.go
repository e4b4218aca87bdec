// Package sweeper releases reservations whose orders stayed pending past a TTL.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store lists pending orders.
type Store interface {
	PendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type Releaser interface {
	Release(ctx context.Context, orderID, reason string) (bool, error)
}

type Sweeper struct {
	Store    Store
	Releaser Releaser
	TTL      time.Duration
	Interval time.Duration
	Reason   string
	Batch    int
	Log      *zap.Logger
	Now      func() time.Time
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger().Error("sweep_failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass and returns how many orders were released. A failed
// release is logged and does not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	ids, err := s.Store.PendingOrdersBefore(ctx, now().Add(-s.TTL), batch)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		ok, err := s.Releaser.Release(ctx, id, s.Reason)
		if err != nil {
			s.logger().Warn("sweep_release_failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if ok {
			released++
		}
	}
	if released > 0 {
		s.logger().Info("sweep_done", zap.Int("released", released), zap.Int("candidates", len(ids)))
	}
	return released, nil
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
