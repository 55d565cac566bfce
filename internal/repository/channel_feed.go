package repository

import (
	"context"
	"sync"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
)

// ChannelFeed hands snapshots from live producers (Kafka handler, websocket stream) to the
// single processing goroutine. Close ends the feed once buffered snapshots are drained.
type ChannelFeed struct {
	ch        chan models.Snapshot
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannelFeed(buffer int) *ChannelFeed {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelFeed{
		ch:   make(chan models.Snapshot, buffer),
		done: make(chan struct{}),
	}
}

// Push blocks until the snapshot is queued, the feed is closed or ctx is done.
func (f *ChannelFeed) Push(ctx context.Context, snap models.Snapshot) error {
	select {
	case <-f.done:
		return ErrFeedClosed
	default:
	}
	select {
	case f.ch <- snap:
		return nil
	case <-f.done:
		return ErrFeedClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *ChannelFeed) Next(ctx context.Context) (models.Snapshot, bool, error) {
	select {
	case snap := <-f.ch:
		return snap, true, nil
	default:
	}
	select {
	case snap := <-f.ch:
		return snap, true, nil
	case <-f.done:
		// drain what was queued before Close
		select {
		case snap := <-f.ch:
			return snap, true, nil
		default:
			return models.Snapshot{}, false, nil
		}
	case <-ctx.Done():
		return models.Snapshot{}, false, ctx.Err()
	}
}

// Close stops accepting snapshots. It is safe to call more than once.
func (f *ChannelFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

var _ domrepo.BarFeed = (*ChannelFeed)(nil)
