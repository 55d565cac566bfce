package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	pkgkafka "OrgTrader/pkg/kafka"
	applogger "OrgTrader/pkg/logger"
)

// BarArchive persists raw bars for later replay.
type BarArchive interface {
	StoreBars(ctx context.Context, bars []models.Bar) error
}

// SnapshotSink receives assembled snapshots.
type SnapshotSink interface {
	Push(ctx context.Context, snap models.Snapshot) error
}

// BarAssembler assembles per-instrument bars into snapshots. It consumes the Kafka bars topic
// directly and backs the websocket stream. Bars sharing a timestamp form one snapshot, emitted
// once a newer bar arrives or as soon as every expected symbol is present. Bars older than the
// pending snapshot are dropped.
type BarAssembler struct {
	topic    string
	out      SnapshotSink
	archive  BarArchive
	metrics  domrepo.Metrics
	expected map[models.Instrument]struct{}
	l        *applogger.Logger

	mu      sync.Mutex
	pending *models.Snapshot
	last    time.Time
}

func NewBarAssembler(topic string, out SnapshotSink, symbols []models.Instrument, metrics domrepo.Metrics) *BarAssembler {
	exp := make(map[models.Instrument]struct{}, len(symbols))
	for _, s := range symbols {
		exp[s] = struct{}{}
	}
	return &BarAssembler{topic: topic, out: out, expected: exp, metrics: metrics}
}

// SetArchive stores every emitted snapshot in a, one bar per symbol holding its last close.
func (h *BarAssembler) SetArchive(a BarArchive) { h.archive = a }

// SetLogger injects a structured logger.
func (h *BarAssembler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *BarAssembler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c}; t in unix seconds or milliseconds
func (h *BarAssembler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("bars_unmarshal")
		return fmt.Errorf("%w: %v", ErrInvalidBar, err)
	}
	if m.Symbol == "" || m.T <= 0 {
		h.recordError("bars_invalid")
		return fmt.Errorf("%w: symbol=%q t=%d", ErrInvalidBar, m.Symbol, m.T)
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	bar := models.Bar{Instrument: models.Instrument(m.Symbol), Close: m.C, Time: time.Unix(m.T, 0).UTC()}
	return h.HandleBar(ctx, bar)
}

// HandleBar folds one bar into the pending snapshot and pushes any snapshot it completes.
func (h *BarAssembler) HandleBar(ctx context.Context, bar models.Bar) error {
	if h.metrics != nil {
		h.metrics.RecordLatency("bar_ingest_e2e", time.Since(bar.Time).Seconds())
	}

	ready, ok := h.accept(bar)
	if !ok {
		h.recordError("bars_stale")
		if h.l != nil {
			h.l.Debug("stale bar dropped",
				applogger.String("symbol", string(bar.Instrument)),
				applogger.Time("t", bar.Time),
			)
		}
		return nil
	}

	for _, snap := range ready {
		if err := h.emit(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func (h *BarAssembler) emit(ctx context.Context, snap models.Snapshot) error {
	h.store(ctx, snap)
	if err := h.out.Push(ctx, snap); err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	return nil
}

// store archives the snapshot stamped with its bucket time. Archive failures are logged and
// do not hold back the live feed.
func (h *BarAssembler) store(ctx context.Context, snap models.Snapshot) {
	if h.archive == nil || len(snap.Bars) == 0 {
		return
	}
	bars := make([]models.Bar, 0, len(snap.Bars))
	for _, b := range snap.Bars {
		b.Time = snap.Time
		bars = append(bars, b)
	}
	if err := h.archive.StoreBars(ctx, bars); err != nil {
		h.recordError("bars_archive")
		if h.l != nil {
			h.l.Error("archive snapshot failed",
				applogger.Time("t", snap.Time),
				applogger.Int("bars", len(bars)),
				applogger.Error(err),
			)
		}
	}
}

// accept folds bar into the pending snapshot and returns snapshots that are complete.
func (h *BarAssembler) accept(bar models.Bar) ([]models.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ready []models.Snapshot
	switch {
	case h.pending == nil:
		if !h.last.IsZero() && !bar.Time.After(h.last) {
			return nil, false
		}
	case bar.Time.Before(h.pending.Time):
		return nil, false
	case bar.Time.After(h.pending.Time):
		ready = append(ready, *h.pending)
		h.last = h.pending.Time
		h.pending = nil
	}
	if h.pending == nil {
		h.pending = &models.Snapshot{Time: bar.Time, Bars: make(map[models.Instrument]models.Bar)}
	}
	h.pending.Put(bar)

	if h.complete() {
		ready = append(ready, *h.pending)
		h.last = h.pending.Time
		h.pending = nil
	}
	return ready, true
}

func (h *BarAssembler) complete() bool {
	if len(h.expected) == 0 {
		return false
	}
	for s := range h.expected {
		if _, ok := h.pending.Bars[s]; !ok {
			return false
		}
	}
	return true
}

// Flush emits the pending snapshot, if any.
func (h *BarAssembler) Flush(ctx context.Context) error {
	h.mu.Lock()
	p := h.pending
	h.pending = nil
	if p != nil {
		h.last = p.Time
	}
	h.mu.Unlock()
	if p == nil {
		return nil
	}
	return h.emit(ctx, *p)
}

func (h *BarAssembler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*BarAssembler)(nil)
