package events

import (
	"context"
	"time"

	"formfill/internal/domain"
	"formfill/internal/repo"
)

const (
	defaultFollowInterval = 2 * time.Second
	defaultFollowBatch    = 100
)

// Source is the read side of the audit log a Follower polls.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, filter repo.EventFilter) ([]domain.Event, error)
}

// Follower streams events with IDs above a cursor, oldest first.
type Follower struct {
	Source   Source
	Filter   repo.EventFilter
	Interval time.Duration
	Batch    int
}

// Run polls until ctx is done, calling fn for each event after cursor. It
// returns nil once ctx is cancelled and fn's error otherwise.
func (f Follower) Run(ctx context.Context, cursor int64, fn func(domain.Event) error) error {
	interval := f.Interval
	if interval <= 0 {
		interval = defaultFollowInterval
	}
	batch := f.Batch
	if batch <= 0 {
		batch = defaultFollowBatch
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			evts, err := f.Source.EventsAfter(ctx, batch, cursor, f.Filter)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, evt := range evts {
				if err := fn(evt); err != nil {
					return err
				}
				cursor = evt.ID
			}
			if len(evts) < batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
