package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OrgTrader/internal/domain/models"
)

var day0 = time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)

func at(i int, closes map[models.Instrument]float64) models.Snapshot {
	return models.NewSnapshot(day0.AddDate(0, 0, i), closes)
}

type sliceFeed struct {
	snaps []models.Snapshot
	i     int
}

func (f *sliceFeed) Next(ctx context.Context) (models.Snapshot, bool, error) {
	if f.i >= len(f.snaps) {
		return models.Snapshot{}, false, nil
	}
	s := f.snaps[f.i]
	f.i++
	return s, true, nil
}

type submitted struct {
	instr models.Instrument
	qty   int64
}

type fakeBroker struct {
	holdings  map[models.Instrument]int64
	submitted []submitted
	failOn    models.Instrument
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{holdings: map[models.Instrument]int64{}}
}

func (b *fakeBroker) Shares(ctx context.Context, instr models.Instrument) (int64, error) {
	return b.holdings[instr], nil
}

func (b *fakeBroker) SubmitOrder(ctx context.Context, instr models.Instrument, qty int64) (models.OrderHandle, error) {
	if instr == b.failOn {
		return "", errors.New("rejected")
	}
	b.holdings[instr] += qty
	b.submitted = append(b.submitted, submitted{instr, qty})
	return models.OrderHandle(fmt.Sprintf("o-%d", len(b.submitted))), nil
}

type fakeSink struct {
	reports []models.EnsembleReport
	err     error
}

func (s *fakeSink) Publish(ctx context.Context, r models.EnsembleReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

type fakeMetrics struct {
	epochs int
	orders int
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{errors: map[string]int{}} }

func (m *fakeMetrics) RecordEpoch(string, bool)         { m.epochs++ }
func (m *fakeMetrics) RecordOrder(string, string)       { m.orders++ }
func (m *fakeMetrics) RecordError(kind string)          { m.errors[kind]++ }
func (m *fakeMetrics) RecordConfidence(string, float64) {}
func (m *fakeMetrics) RecordWeight(string, float64)     {}
func (m *fakeMetrics) RecordLatency(string, float64)    {}
