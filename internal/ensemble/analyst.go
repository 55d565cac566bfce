package ensemble

import (
	"strings"

	"OrgTrader/internal/domain/models"
)

// DefaultConfidence is the standalone confidence of an analyst that has not joined an ensemble.
const DefaultConfidence = 0.1

// Analyst is an independent source of a proposed allocation.
type Analyst struct {
	name       string
	confidence float64
	weights    *WeightVector
}

// AnalystOption configures an Analyst.
type AnalystOption func(*Analyst)

// WithConfidence sets the standalone confidence. Values outside [0, 1] fall back to DefaultConfidence.
func WithConfidence(c float64) AnalystOption {
	return func(a *Analyst) {
		if c >= 0 && c <= 1 {
			a.confidence = c
		}
	}
}

// NewAnalyst creates an analyst with an empty allocation.
func NewAnalyst(name string, opts ...AnalystOption) *Analyst {
	a := &Analyst{
		name:       NormalizeName(name),
		confidence: DefaultConfidence,
		weights:    NewWeightVector(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NormalizeName trims and lower-cases an analyst name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Name returns the case-normalized name.
func (a *Analyst) Name() string { return a.name }

// Confidence returns the standalone confidence.
func (a *Analyst) Confidence() float64 { return a.confidence }

// Weights returns the analyst's allocation.
func (a *Analyst) Weights() *WeightVector { return a.weights }

// AssignWeight is a shorthand for Weights().Assign.
func (a *Analyst) AssignWeight(instr models.Instrument, weight float64) error {
	return a.weights.Assign(instr, weight)
}

// ResetWeights clears the allocation.
func (a *Analyst) ResetWeights() { a.weights.Reset() }
