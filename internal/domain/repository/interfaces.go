package repository

import (
	"context"
	"errors"
	"time"

	"OrgTrader/internal/domain/models"
)

// BarFeed yields market snapshots in non-decreasing time order.
// ok is false once the feed is exhausted.
type BarFeed interface {
	Next(ctx context.Context) (snap models.Snapshot, ok bool, err error)
}

// Broker executes orders and reports current holdings.
type Broker interface {
	Shares(ctx context.Context, instr models.Instrument) (int64, error)
	SubmitOrder(ctx context.Context, instr models.Instrument, qty int64) (models.OrderHandle, error)
}

// ReportSink receives the ensemble status after every epoch.
type ReportSink interface {
	Publish(ctx context.Context, r models.EnsembleReport) error
}

// ReportStore serves the most recently published report.
type ReportStore interface {
	Latest(ctx context.Context) (*models.EnsembleReport, error)
}

// BarStore provides historical bars grouped into snapshots.
type BarStore interface {
	Snapshots(ctx context.Context, symbols []models.Instrument, from, to time.Time, tf Timeframe) ([]models.Snapshot, error)
}

type Metrics interface {
	RecordEpoch(ensemble string, triggered bool)
	RecordOrder(instr, side string)
	RecordError(kind string)
	RecordConfidence(analyst string, confidence float64)
	RecordWeight(instr string, weight float64)
	RecordLatency(op string, seconds float64)
}

// ErrNotFound is returned by stores when nothing has been recorded yet.
var ErrNotFound = errors.New("not found")
