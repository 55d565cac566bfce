package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OrgTrader/internal/ensemble"
	"OrgTrader/pkg/config"
)

func TestBuildEnsemble_AppliesWeightsInOrder(t *testing.T) {
	e, err := BuildEnsemble("org", "derived", []config.AnalystConfig{
		{Name: "Ivy", Confidence: 0.2, Weights: []config.Assignment{
			{Instrument: "AAA", Weight: 0.6},
			{Instrument: "BBB", Weight: 0.4},
			{Instrument: "CCC", Weight: 0.5},
		}},
		{Name: "Charlie", Confidence: 0.9},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	ivy, ok := e.Analyst("ivy")
	require.True(t, ok)
	w, _ := ivy.Weights().Weight("AAA")
	assert.InDelta(t, 0.3, w, ensemble.Epsilon)
	w, _ = ivy.Weights().Weight("CCC")
	assert.InDelta(t, 0.5, w, ensemble.Epsilon)

	// derived mode ignores the configured 0.9
	c1, _ := e.Confidence("ivy")
	c2, _ := e.Confidence("charlie")
	assert.InDelta(t, 0.5, c1, ensemble.Epsilon)
	assert.InDelta(t, 0.5, c2, ensemble.Epsilon)
}

func TestBuildEnsemble_Errors(t *testing.T) {
	_, err := BuildEnsemble("org", "bogus", nil, nil)
	assert.Error(t, err)

	_, err = BuildEnsemble("org", "given", []config.AnalystConfig{
		{Name: "a", Weights: []config.Assignment{{Instrument: "AAA", Weight: 2}}},
	}, nil)
	assert.ErrorIs(t, err, ensemble.ErrInvalidWeight)

	_, err = BuildEnsemble("org", "given", []config.AnalystConfig{{Name: "a"}, {Name: "A"}}, nil)
	assert.ErrorIs(t, err, ensemble.ErrDuplicateAnalyst)
}
