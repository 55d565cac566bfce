package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/internal/ensemble"
	applogger "OrgTrader/pkg/logger"
)

// DefaultCapital is the notional capital orders are sized against.
const DefaultCapital = 1_000_000.0

// OrderGenerator turns blended weights into share deltas against the broker's holdings.
type OrderGenerator struct {
	broker  domrepo.Broker
	capital float64
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewOrderGenerator(broker domrepo.Broker, capital float64, metrics domrepo.Metrics) *OrderGenerator {
	if capital <= 0 {
		capital = DefaultCapital
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &OrderGenerator{broker: broker, capital: capital, metrics: metrics}
}

func (g *OrderGenerator) SetLogger(l *applogger.Logger) { g.l = l }

// Capital returns the sizing capital.
func (g *OrderGenerator) Capital() float64 { return g.capital }

// Generate sizes every instrument with a nonzero weight to floor(capital*weight/close) shares
// and submits the difference to the current holding. Prices are checked before anything is
// submitted; a broker failure returns the orders already placed along with the error.
func (g *OrderGenerator) Generate(ctx context.Context, weights map[models.Instrument]float64, snap models.Snapshot) ([]models.Order, error) {
	instrs := make([]models.Instrument, 0, len(weights))
	for instr, w := range weights {
		if w != 0 {
			instrs = append(instrs, instr)
		}
	}
	sort.Slice(instrs, func(i, j int) bool { return instrs[i] < instrs[j] })

	prices := make(map[models.Instrument]float64, len(instrs))
	for _, instr := range instrs {
		px, ok := snap.Close(instr)
		if !ok || px <= 0 {
			return nil, fmt.Errorf("size %s: %w", instr, ensemble.ErrMissingPrice)
		}
		prices[instr] = px
	}

	start := time.Now()
	defer func() { g.metrics.RecordLatency("rebalance", time.Since(start).Seconds()) }()

	var orders []models.Order
	for _, instr := range instrs {
		target := int64(math.Floor(g.capital * weights[instr] / prices[instr]))
		current, err := g.broker.Shares(ctx, instr)
		if err != nil {
			g.metrics.RecordError("broker_shares")
			return orders, fmt.Errorf("shares %s: %w", instr, err)
		}
		delta := target - current
		if delta == 0 {
			continue
		}
		handle, err := g.broker.SubmitOrder(ctx, instr, delta)
		if err != nil {
			g.metrics.RecordError("broker_submit")
			return orders, fmt.Errorf("submit %s %d: %w", instr, delta, err)
		}
		o := models.Order{
			Handle:     handle,
			Instrument: instr,
			Quantity:   delta,
			Target:     target,
			Current:    current,
			Price:      prices[instr],
			Time:       snap.Time,
		}
		orders = append(orders, o)
		g.metrics.RecordOrder(string(instr), o.Side())
		if g.l != nil {
			g.l.Debug("order submitted",
				applogger.String("instrument", string(instr)),
				applogger.Int64("qty", delta),
				applogger.Int64("target", target),
				applogger.String("handle", string(handle)),
			)
		}
	}
	return orders, nil
}
