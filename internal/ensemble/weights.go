package ensemble

import (
	"fmt"
	"math"
	"sort"

	"OrgTrader/internal/domain/models"
)

// Epsilon is the tolerance used for weight and confidence sums.
const Epsilon = 1e-9

// WeightVector is one analyst's allocation across instruments.
// The weights always sum to at most 1 + Epsilon.
type WeightVector struct {
	weights map[models.Instrument]float64
	total   float64
}

// NewWeightVector returns an empty vector.
func NewWeightVector() *WeightVector {
	return &WeightVector{weights: make(map[models.Instrument]float64)}
}

// Assign gives instr exactly weight and rescales the other instruments to make room.
//
// When the vector ends up holding a single instrument its weight is forced to 1.0,
// whatever weight was requested.
func (v *WeightVector) Assign(instr models.Instrument, weight float64) error {
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return fmt.Errorf("assign %s=%v: %w", instr, weight, ErrInvalidWeight)
	}

	next := make(map[models.Instrument]float64, len(v.weights)+1)
	if old, ok := v.weights[instr]; ok {
		if old >= 1 {
			return fmt.Errorf("assign %s=%v: %w", instr, weight, ErrDegenerateRescale)
		}
		factor := (1 - weight) / (1 - old)
		for k, w := range v.weights {
			if k != instr {
				next[k] = w * factor
			}
		}
	} else {
		for k, w := range v.weights {
			next[k] = w * (1 - weight)
		}
	}
	next[instr] = weight

	// A lone instrument always carries the full allocation.
	if len(next) == 1 {
		next[instr] = 1.0
	}

	v.weights = next
	v.total = sum(next)
	return nil
}

// Reset clears the vector.
func (v *WeightVector) Reset() {
	v.weights = make(map[models.Instrument]float64)
	v.total = 0
}

// Weight returns the weight of instr and whether it is held.
func (v *WeightVector) Weight(instr models.Instrument) (float64, bool) {
	w, ok := v.weights[instr]
	return w, ok
}

// Len returns the number of instruments held.
func (v *WeightVector) Len() int { return len(v.weights) }

// Total returns the sum of all weights.
func (v *WeightVector) Total() float64 { return v.total }

// Instruments returns the held instruments in lexical order.
func (v *WeightVector) Instruments() []models.Instrument {
	out := make([]models.Instrument, 0, len(v.weights))
	for k := range v.weights {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Map returns a copy of the weights.
func (v *WeightVector) Map() map[models.Instrument]float64 {
	out := make(map[models.Instrument]float64, len(v.weights))
	for k, w := range v.weights {
		out[k] = w
	}
	return out
}

func sum(m map[models.Instrument]float64) float64 {
	t := 0.0
	for _, w := range m {
		t += w
	}
	return t
}
