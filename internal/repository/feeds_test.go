package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
)

func TestCSVFeedReadsWideRows(t *testing.T) {
	in := `date,AAA,BBB
# comment
2024-01-02,10,20
2024-01-03,11,
`
	feed, err := NewCSVFeed(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []models.Instrument{"AAA", "BBB"}, feed.Instruments())

	ctx := context.Background()
	s1, ok, err := feed.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	px, _ := s1.Close("BBB")
	assert.Equal(t, 20.0, px)

	s2, ok, err := feed.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s2.Time.After(s1.Time))
	_, quoted := s2.Close("BBB")
	assert.False(t, quoted)

	_, ok, err = feed.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSVFeedRejectsBadInput(t *testing.T) {
	_, err := NewCSVFeed(strings.NewReader("date\n"))
	assert.ErrorIs(t, err, ErrBadCSV)

	feed, err := NewCSVFeed(strings.NewReader("date,AAA\n2024-01-02,abc\n"))
	require.NoError(t, err)
	_, _, err = feed.Next(context.Background())
	assert.ErrorIs(t, err, ErrBadCSV)
}

func TestChannelFeedDrainsAfterClose(t *testing.T) {
	feed := NewChannelFeed(2)
	ctx := context.Background()
	snap := models.NewSnapshot(time.Unix(100, 0), map[models.Instrument]float64{"AAA": 1})

	require.NoError(t, feed.Push(ctx, snap))
	feed.Close()
	feed.Close()

	assert.ErrorIs(t, feed.Push(ctx, snap), ErrFeedClosed)

	got, ok, err := feed.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Time.Equal(snap.Time))

	_, ok, err = feed.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannelFeedNextHonoursContext(t *testing.T) {
	feed := NewChannelFeed(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := feed.Next(ctx)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type stubBarStore struct {
	snaps []models.Snapshot
	calls int
	err   error
}

func (s *stubBarStore) Snapshots(context.Context, []models.Instrument, time.Time, time.Time, domrepo.Timeframe) ([]models.Snapshot, error) {
	s.calls++
	return s.snaps, s.err
}

func TestReplayFeedLoadsOnce(t *testing.T) {
	store := &stubBarStore{snaps: []models.Snapshot{
		models.NewSnapshot(time.Unix(1, 0), map[models.Instrument]float64{"AAA": 1}),
		models.NewSnapshot(time.Unix(2, 0), map[models.Instrument]float64{"AAA": 2}),
	}}
	feed := NewReplayFeed(store, []models.Instrument{"AAA"}, time.Unix(0, 0), time.Unix(10, 0), domrepo.TF1d)

	ctx := context.Background()
	n := 0
	for {
		_, ok, err := feed.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.calls)
}

func TestReplayFeedStoreError(t *testing.T) {
	boom := errors.New("boom")
	feed := NewReplayFeed(&stubBarStore{err: boom}, nil, time.Time{}, time.Time{}, domrepo.TF1d)
	_, _, err := feed.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSampleBarsFileReplays(t *testing.T) {
	feed, err := OpenCSVFeed("../../data/bars.csv")
	require.NoError(t, err)
	defer feed.Close()
	assert.Equal(t, []models.Instrument{"AAPL", "MSFT"}, feed.Instruments())

	n := 0
	for {
		snap, ok, err := feed.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Len(t, snap.Bars, 2)
		n++
	}
	assert.Equal(t, 12, n)
}
