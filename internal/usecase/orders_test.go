package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OrgTrader/internal/domain/models"
	"OrgTrader/internal/ensemble"
)

func TestOrderGenerator_SizesAgainstHoldings(t *testing.T) {
	broker := newFakeBroker()
	broker.holdings["AAA"] = 2000
	broker.holdings["CCC"] = 7
	g := NewOrderGenerator(broker, 0, nil)
	assert.Equal(t, DefaultCapital, g.Capital())

	snap := at(0, map[models.Instrument]float64{"AAA": 250, "BBB": 33, "CCC": 1})
	orders, err := g.Generate(context.Background(), map[models.Instrument]float64{
		"AAA": 0.5,
		"BBB": 0.25,
		"CCC": 0,
	}, snap)
	require.NoError(t, err)

	// AAA already at target, CCC has no weight and is left alone
	require.Len(t, orders, 1)
	assert.Equal(t, models.Instrument("BBB"), orders[0].Instrument)
	assert.Equal(t, int64(7575), orders[0].Quantity)
	assert.Equal(t, "buy", orders[0].Side())
	assert.Equal(t, int64(7), broker.holdings["CCC"])
}

func TestOrderGenerator_SellsDown(t *testing.T) {
	broker := newFakeBroker()
	broker.holdings["AAA"] = 50
	g := NewOrderGenerator(broker, 1000, nil)

	orders, err := g.Generate(context.Background(), map[models.Instrument]float64{"AAA": 0.1},
		at(0, map[models.Instrument]float64{"AAA": 10}))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(-40), orders[0].Quantity)
	assert.Equal(t, "sell", orders[0].Side())
}

func TestOrderGenerator_MissingPriceSubmitsNothing(t *testing.T) {
	broker := newFakeBroker()
	g := NewOrderGenerator(broker, 1000, nil)

	_, err := g.Generate(context.Background(), map[models.Instrument]float64{"AAA": 0.5, "ZZZ": 0.5},
		at(0, map[models.Instrument]float64{"AAA": 10}))
	require.ErrorIs(t, err, ensemble.ErrMissingPrice)
	assert.Empty(t, broker.submitted)
}

func TestOrderGenerator_BrokerFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.failOn = "BBB"
	g := NewOrderGenerator(broker, 1000, nil)

	orders, err := g.Generate(context.Background(), map[models.Instrument]float64{"AAA": 0.5, "BBB": 0.5},
		at(0, map[models.Instrument]float64{"AAA": 10, "BBB": 10}))
	require.Error(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.Instrument("AAA"), orders[0].Instrument)
}
