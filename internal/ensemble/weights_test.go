package ensemble

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OrgTrader/internal/domain/models"
)

func TestWeightVector_AssignNewInstrumentRescalesOthers(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("AAA", 0.6))
	require.NoError(t, v.Assign("BBB", 0.4))
	require.NoError(t, v.Assign("CCC", 0.5))

	assertWeight(t, v, "AAA", 0.3)
	assertWeight(t, v, "BBB", 0.2)
	assertWeight(t, v, "CCC", 0.5)
	assert.InDelta(t, 1.0, v.Total(), Epsilon)
}

func TestWeightVector_ReassignRescalesOthers(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("AAA", 0.6))
	require.NoError(t, v.Assign("BBB", 0.4))
	require.NoError(t, v.Assign("BBB", 0.2))

	assertWeight(t, v, "AAA", 0.8)
	assertWeight(t, v, "BBB", 0.2)
}

func TestWeightVector_SingleInstrumentForcedToOne(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("AAA", 0.3))
	assertWeight(t, v, "AAA", 1.0)

	v.Reset()
	assert.Equal(t, 0, v.Len())
	assert.Zero(t, v.Total())

	require.NoError(t, v.Assign("BBB", 0))
	assertWeight(t, v, "BBB", 1.0)
}

func TestWeightVector_InvalidWeightLeavesVectorUnchanged(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("AAA", 0.6))
	require.NoError(t, v.Assign("BBB", 0.4))
	before := v.Map()

	for _, w := range []float64{-0.01, 1.01, 2} {
		err := v.Assign("CCC", w)
		require.ErrorIs(t, err, ErrInvalidWeight)
	}
	assert.Equal(t, before, v.Map())
	assert.InDelta(t, 1.0, v.Total(), Epsilon)
}

func TestWeightVector_DegenerateRescale(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("AAA", 0.5))
	before := v.Map()

	err := v.Assign("AAA", 0.4)
	require.ErrorIs(t, err, ErrDegenerateRescale)
	assert.Equal(t, before, v.Map())
}

func TestWeightVector_SumNeverExceedsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	instruments := []models.Instrument{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}

	for run := 0; run < 200; run++ {
		v := NewWeightVector()
		for step := 0; step < 40; step++ {
			instr := instruments[rng.Intn(len(instruments))]
			err := v.Assign(instr, rng.Float64())
			if err != nil {
				require.ErrorIs(t, err, ErrDegenerateRescale)
			}
			require.LessOrEqual(t, v.Total(), 1+Epsilon)
			require.InDelta(t, sum(v.Map()), v.Total(), Epsilon)
			if v.Len() == 1 {
				w, _ := v.Weight(v.Instruments()[0])
				require.Equal(t, 1.0, w)
			}
		}
	}
}

func TestWeightVector_InstrumentsSorted(t *testing.T) {
	v := NewWeightVector()
	require.NoError(t, v.Assign("cmg", 0.673))
	require.NoError(t, v.Assign("aapl", 0.215))
	require.NoError(t, v.Assign("bk", 0.1))
	assert.Equal(t, []models.Instrument{"aapl", "bk", "cmg"}, v.Instruments())
}

func assertWeight(t *testing.T, v *WeightVector, instr models.Instrument, want float64) {
	t.Helper()
	w, ok := v.Weight(instr)
	require.True(t, ok, "instrument %s missing", instr)
	assert.InDelta(t, want, w, Epsilon)
}
