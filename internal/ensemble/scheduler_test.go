package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebalanceScheduler_Cadence(t *testing.T) {
	s := NewRebalanceScheduler(3)
	got := make([]bool, 0, 9)
	for i := 0; i < 9; i++ {
		got = append(got, s.ShouldTrigger())
	}
	assert.Equal(t, []bool{false, false, false, true, false, false, false, true, false}, got)
}

func TestRebalanceScheduler_ZeroPeriodAlwaysTriggers(t *testing.T) {
	for _, period := range []int{0, -4} {
		s := NewRebalanceScheduler(period)
		assert.Equal(t, 0, s.Period())
		for i := 0; i < 3; i++ {
			assert.True(t, s.ShouldTrigger())
		}
	}
}
