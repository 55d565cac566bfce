package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	pkgch "OrgTrader/pkg/clickhouse"
)

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return pkgch.NewClientFromDB(db), mock
}

func TestCHBarStoreSnapshotsGroupsByBucket(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHBarStore(ch, "")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 3)
	d1, d2 := from, from.AddDate(0, 0, 1)

	rows := sqlmock.NewRows([]string{"bucket", "symbol", "close"}).
		AddRow(d1, "AAA", 10.0).
		AddRow(d1, "BBB", 20.0).
		AddRow(d2, "AAA", 11.0)
	mock.ExpectQuery(`SELECT toStartOfDay\(ts\) AS bucket, symbol, argMax\(close, ts\) AS close\s+FROM market_bars`).
		WithArgs("AAA", "BBB", from, to).
		WillReturnRows(rows)

	snaps, err := store.Snapshots(context.Background(), []models.Instrument{"AAA", "BBB"}, from, to, domrepo.TF1d)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.True(t, snaps[0].Time.Equal(d1))
	px, ok := snaps[0].Close("BBB")
	assert.True(t, ok)
	assert.Equal(t, 20.0, px)

	_, ok = snaps[1].Close("BBB")
	assert.False(t, ok, "BBB was not quoted on day two")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreSnapshotsQueryError(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHBarStore(ch, "bars")

	boom := errors.New("boom")
	mock.ExpectQuery(`FROM bars`).WillReturnError(boom)

	_, err := store.Snapshots(context.Background(), []models.Instrument{"AAA"}, time.Time{}, time.Now(), domrepo.TF1h)
	assert.ErrorIs(t, err, boom)
}

func TestCHBarStoreNoSymbolsSkipsQuery(t *testing.T) {
	ch, mock := newMockClient(t)
	snaps, err := NewCHBarStore(ch, "").Snapshots(context.Background(), nil, time.Time{}, time.Now(), domrepo.TF1d)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreStoreBars(t *testing.T) {
	ch, mock := newMockClient(t)
	store := NewCHBarStore(ch, "")
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO market_bars \(ts, symbol, close\) VALUES \(\?, \?, \?\),\(\?, \?, \?\)`).
		WithArgs(ts, "AAA", 10.5, ts, "BBB", 3.0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.StoreBars(context.Background(), []models.Bar{
		{Instrument: "AAA", Close: 10.5, Time: ts},
		{Instrument: "", Close: 1, Time: ts},
		{Instrument: "BBB", Close: 3, Time: ts},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHReportSinkWritesOneRowPerValue(t *testing.T) {
	ch, mock := newMockClient(t)
	sink := NewCHReportSink(ch, "")
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	score := 1.04

	r := models.EnsembleReport{
		Name:      "org",
		Epoch:     7,
		Timestamp: ts,
		Blended:   map[models.Instrument]float64{"BBB": 0.25, "AAA": 0.5},
		Analysts: []models.AnalystReport{
			{Name: "alice", Confidence: 0.6, Score: &score},
			{Name: "bob", Confidence: 0.4},
		},
	}

	mock.ExpectExec(`INSERT INTO ensemble_history \(ts, epoch, ensemble, kind, key, value\) VALUES`).
		WithArgs(
			ts, int64(7), "org", "confidence", "alice", 0.6,
			ts, int64(7), "org", "score", "alice", 1.04,
			ts, int64(7), "org", "confidence", "bob", 0.4,
			ts, int64(7), "org", "weight", "AAA", 0.5,
			ts, int64(7), "org", "weight", "BBB", 0.25,
		).
		WillReturnResult(sqlmock.NewResult(0, 5))

	require.NoError(t, sink.Publish(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHReportSinkEmptyReport(t *testing.T) {
	ch, mock := newMockClient(t)
	require.NoError(t, NewCHReportSink(ch, "").Publish(context.Background(), models.EnsembleReport{Name: "org"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
