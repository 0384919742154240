package service

import (
	"context"
	"log"
	"time"

	"github.com/rferraz/library-circulation/internal/queue"
)

// Sweeper drives the periodic maintenance pass.  It runs Sweep on a
// fixed interval and publishes whatever notifications the pass
// produced.  The sweep itself is idempotent, so an overlapping or
// repeated run is harmless.
type Sweeper struct {
	engine    *Circulation
	publisher queue.Publisher
	interval  time.Duration
}

// NewSweeper builds a sweeper for the given engine.  A nil publisher
// falls back to discarding notifications.
func NewSweeper(engine *Circulation, publisher queue.Publisher, interval time.Duration) *Sweeper {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &Sweeper{engine: engine, publisher: publisher, interval: interval}
}

// Run blocks, sweeping on every tick until the context is cancelled.
// Intended to be started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	result, err := s.engine.Sweep(ctx)
	if err != nil {
		log.Printf("sweeper: sweep failed: %v", err)
		return
	}
	if result.ExpiredReservations > 0 || result.OverdueLoans > 0 {
		log.Printf("sweeper: expired %d reservation(s), %d loan(s) overdue",
			result.ExpiredReservations, result.OverdueLoans)
	}
	for _, n := range result.Notifications {
		if err := s.publisher.Publish(ctx, n); err != nil {
			log.Printf("sweeper: publish %s failed: %v", n.Kind, err)
		}
	}
}
