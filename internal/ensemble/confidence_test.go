package ensemble

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceSet_AddGivenNormalizes(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0.1, InitGiven))
	c, _ := s.Confidence("a")
	assert.InDelta(t, 1.0, c, Epsilon)

	require.NoError(t, s.Add("b", 0.5, InitGiven))
	a, _ := s.Confidence("a")
	b, _ := s.Confidence("b")
	assert.InDelta(t, 2.0/3.0, a, Epsilon)
	assert.InDelta(t, 1.0/3.0, b, Epsilon)
	assert.InDelta(t, 1.0, s.Cumulative(), Epsilon)
}

func TestConfidenceSet_AddDerivedUsesMean(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0.2, InitDerived))
	require.NoError(t, s.Add("b", 0.9, InitDerived))

	a, _ := s.Confidence("a")
	b, _ := s.Confidence("b")
	assert.InDelta(t, 0.5, a, Epsilon)
	assert.InDelta(t, 0.5, b, Epsilon)

	require.NoError(t, s.Add("c", 0, InitDerived))
	for _, name := range s.Names() {
		c, _ := s.Confidence(name)
		assert.InDelta(t, 1.0/3.0, c, Epsilon)
	}
}

func TestConfidenceSet_AddDuplicate(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0.5, InitGiven))
	err := s.Add("a", 0.7, InitGiven)
	require.ErrorIs(t, err, ErrDuplicateAnalyst)
	assert.Equal(t, 1, s.Len())
}

func TestConfidenceSet_RemoveRenormalizes(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0.5, InitGiven))
	require.NoError(t, s.Add("b", 0.5, InitGiven))
	s.ResetUniform()

	require.NoError(t, s.Remove("a"))
	assert.False(t, s.Has("a"))
	b, _ := s.Confidence("b")
	assert.InDelta(t, 1.0, b, Epsilon)

	require.NoError(t, s.Remove("b"))
	assert.Equal(t, 0, s.Len())
	assert.Zero(t, s.Cumulative())
}

func TestConfidenceSet_RemoveUnknownLeavesSetUnchanged(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0.3, InitGiven))
	require.NoError(t, s.Add("b", 0.6, InitGiven))
	cum, n, values := s.Cumulative(), s.Len(), s.Map()

	err := s.Remove("nobody")
	require.ErrorIs(t, err, ErrAnalystNotFound)
	assert.Equal(t, cum, s.Cumulative())
	assert.Equal(t, n, s.Len())
	assert.Equal(t, values, s.Map())
}

func TestConfidenceSet_ZeroConfidenceIsNonFatal(t *testing.T) {
	s := NewConfidenceSet()
	require.NoError(t, s.Add("a", 0, InitGiven))
	require.NoError(t, s.Add("b", 0, InitGiven))

	err := s.Normalize()
	require.ErrorIs(t, err, ErrZeroConfidence)
	assert.Equal(t, map[string]float64{"a": 0, "b": 0}, s.Map())
	assert.Zero(t, s.Cumulative())
}

func TestConfidenceSet_NormalizeSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewConfidenceSet()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, s.Add(name, rng.Float64(), InitGiven))
	}
	for i := 0; i < 100; i++ {
		for _, name := range s.Names() {
			require.NoError(t, s.Scale(name, 0.5+rng.Float64()))
		}
		require.NoError(t, s.Normalize())

		total := 0.0
		for _, c := range s.Map() {
			total += c
		}
		require.InDelta(t, 1.0, total, Epsilon)
		require.Equal(t, 1.0, s.Cumulative())
	}
}

func TestConfidenceSet_ResetUniform(t *testing.T) {
	s := NewConfidenceSet()
	s.ResetUniform()
	assert.Equal(t, 0, s.Len())

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Add(name, 0.05, InitGiven))
	}
	require.NoError(t, s.Scale("a", 3))
	s.ResetUniform()
	for _, c := range s.Map() {
		assert.InDelta(t, 0.25, c, Epsilon)
	}
	assert.Equal(t, 1.0, s.Cumulative())
}

func TestParseInitMode(t *testing.T) {
	m, err := ParseInitMode("derived")
	require.NoError(t, err)
	assert.Equal(t, InitDerived, m)

	m, err = ParseInitMode("")
	require.NoError(t, err)
	assert.Equal(t, InitGiven, m)

	_, err = ParseInitMode("mean")
	assert.Error(t, err)
}
