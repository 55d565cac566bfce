package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/internal/ensemble"
	applogger "OrgTrader/pkg/logger"
)

// EpochProcessor drives one ensemble through a stream of snapshots. It owns the ensemble,
// the scheduler and the previous snapshot and must be used from a single goroutine.
type EpochProcessor struct {
	ens     *ensemble.Ensemble
	updater *ensemble.ConfidenceUpdater
	sched   *ensemble.RebalanceScheduler
	orders  *OrderGenerator
	sink    domrepo.ReportSink
	metrics domrepo.Metrics
	l       *applogger.Logger
	strict  bool

	prev  *models.Snapshot
	epoch int64
}

// ProcessorOption configures EpochProcessor.
type ProcessorOption func(*EpochProcessor)

// WithStrict makes Run stop on the first failed epoch instead of logging and continuing.
func WithStrict(strict bool) ProcessorOption {
	return func(p *EpochProcessor) { p.strict = strict }
}

// WithReportSink sets where the per-epoch report goes.
func WithReportSink(sink domrepo.ReportSink) ProcessorOption {
	return func(p *EpochProcessor) { p.sink = sink }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m domrepo.Metrics) ProcessorOption {
	return func(p *EpochProcessor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger injects a structured logger into the processor and the ensemble core.
func WithLogger(l *applogger.Logger) ProcessorOption {
	return func(p *EpochProcessor) { p.l = l }
}

func NewEpochProcessor(
	ens *ensemble.Ensemble,
	sched *ensemble.RebalanceScheduler,
	orders *OrderGenerator,
	opts ...ProcessorOption,
) *EpochProcessor {
	p := &EpochProcessor{
		ens:     ens,
		updater: ensemble.NewConfidenceUpdater(nil),
		sched:   sched,
		orders:  orders,
		metrics: nopMetrics{},
		strict:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.l != nil {
		p.ens.SetLogger(p.l)
		p.updater.SetLogger(p.l)
		p.orders.SetLogger(p.l)
	}
	return p
}

// Epoch returns the number of snapshots accepted so far.
func (p *EpochProcessor) Epoch() int64 { return p.epoch }

// Ensemble returns the driven ensemble. Callers must not mutate it concurrently with OnSnapshot.
func (p *EpochProcessor) Ensemble() *ensemble.Ensemble { return p.ens }

// OnSnapshot runs one epoch: confidences are updated against the previous snapshot, the
// scheduler ticks, and on a triggering epoch orders are sent. The snapshot becomes the
// new reference even when scoring fails.
func (p *EpochProcessor) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	if p.prev != nil && snap.Time.Before(p.prev.Time) {
		p.metrics.RecordError("out_of_order")
		return fmt.Errorf("epoch at %s before %s: %w", snap.Time.Format(time.RFC3339), p.prev.Time.Format(time.RFC3339), ErrOutOfOrder)
	}

	start := time.Now()
	p.epoch++
	ctx = domrepo.ContextWithEpoch(ctx, p.epoch)

	var (
		scores map[string]float64
		err    error
	)
	if p.prev != nil {
		scores, err = p.updater.Update(p.ens, snap, *p.prev)
	}
	p.prev = &snap
	triggered := p.sched.ShouldTrigger()

	if err != nil {
		p.metrics.RecordError("score")
		if triggered && p.l != nil {
			p.l.Warn("rebalance skipped", applogger.Int64("epoch", p.epoch), applogger.Error(err))
		}
		return fmt.Errorf("epoch %d: %w", p.epoch, err)
	}

	var orders []models.Order
	if triggered {
		orders, err = p.orders.Generate(ctx, p.ens.Weights(), snap)
		if err != nil {
			p.metrics.RecordError("rebalance")
			return fmt.Errorf("epoch %d rebalance: %w", p.epoch, err)
		}
	}

	report := p.ens.Report(p.epoch, snap.Time, scores)
	report.Triggered = triggered
	report.Orders = len(orders)
	p.record(report)

	if p.sink != nil {
		if err := p.sink.Publish(ctx, report); err != nil {
			p.metrics.RecordError("report_sink")
			if p.l != nil {
				p.l.Error("publish report failed", applogger.Int64("epoch", p.epoch), applogger.Error(err))
			}
		}
	}

	p.metrics.RecordLatency("epoch", time.Since(start).Seconds())
	if p.l != nil {
		p.l.Debug("epoch processed",
			applogger.Int64("epoch", p.epoch),
			applogger.Time("ts", snap.Time),
			applogger.Bool("triggered", triggered),
			applogger.Int("orders", len(orders)),
		)
	}
	return nil
}

func (p *EpochProcessor) record(r models.EnsembleReport) {
	p.metrics.RecordEpoch(r.Name, r.Triggered)
	for _, a := range r.Analysts {
		p.metrics.RecordConfidence(a.Name, a.Confidence)
	}
	for instr, w := range r.Blended {
		p.metrics.RecordWeight(string(instr), w)
	}
}

// Run consumes feed until it is exhausted or ctx is done. Out-of-order snapshots are
// always skipped. Other epoch failures stop the run in strict mode and are logged otherwise.
func (p *EpochProcessor) Run(ctx context.Context, feed domrepo.BarFeed) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, ok, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.metrics.RecordError("feed")
			return fmt.Errorf("feed: %w", err)
		}
		if !ok {
			if p.l != nil {
				p.l.Info("feed exhausted", applogger.Int64("epochs", p.epoch))
			}
			return nil
		}

		err = p.OnSnapshot(ctx, snap)
		switch {
		case err == nil:
		case errors.Is(err, ErrOutOfOrder):
			if p.l != nil {
				p.l.Warn("snapshot skipped", applogger.Error(err))
			}
		case p.strict:
			return err
		default:
			if p.l != nil {
				p.l.Error("epoch failed", applogger.Error(err))
			}
		}
	}
}
