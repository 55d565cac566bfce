package repository

import (
	"context"
	"fmt"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
)

// ReplayFeed serves historical snapshots loaded from a BarStore on the first Next.
type ReplayFeed struct {
	store   domrepo.BarStore
	symbols []models.Instrument
	from    time.Time
	to      time.Time
	tf      domrepo.Timeframe

	loaded bool
	snaps  []models.Snapshot
	pos    int
}

func NewReplayFeed(store domrepo.BarStore, symbols []models.Instrument, from, to time.Time, tf domrepo.Timeframe) *ReplayFeed {
	return &ReplayFeed{store: store, symbols: symbols, from: from, to: to, tf: tf}
}

// NewSliceFeed serves snaps as given.
func NewSliceFeed(snaps []models.Snapshot) *ReplayFeed {
	return &ReplayFeed{loaded: true, snaps: snaps}
}

func (f *ReplayFeed) Next(ctx context.Context) (models.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, false, err
	}
	if !f.loaded {
		snaps, err := f.store.Snapshots(ctx, f.symbols, f.from, f.to, f.tf)
		if err != nil {
			return models.Snapshot{}, false, fmt.Errorf("load replay: %w", err)
		}
		f.snaps, f.loaded = snaps, true
	}
	if f.pos >= len(f.snaps) {
		return models.Snapshot{}, false, nil
	}
	s := f.snaps[f.pos]
	f.pos++
	return s, true, nil
}

// Len returns the number of loaded snapshots.
func (f *ReplayFeed) Len() int { return len(f.snaps) }

var _ domrepo.BarFeed = (*ReplayFeed)(nil)
