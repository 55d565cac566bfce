package ensemble

import (
	"errors"
	"fmt"
	"math"
	"sort"

	applogger "OrgTrader/pkg/logger"
)

// zeroTolerance absorbs the float residue left by subtracting confidences from the running sum.
const zeroTolerance = 1e-15

// InitMode selects how a newly admitted analyst's confidence is initialized.
type InitMode int

const (
	// InitGiven keeps the analyst's own confidence.
	InitGiven InitMode = iota
	// InitDerived uses the mean confidence of the current members.
	InitDerived
)

// ParseInitMode maps "given" and "derived" to an InitMode.
func ParseInitMode(s string) (InitMode, error) {
	switch s {
	case "", "given":
		return InitGiven, nil
	case "derived":
		return InitDerived, nil
	default:
		return InitGiven, fmt.Errorf("unknown init mode %q", s)
	}
}

func (m InitMode) String() string {
	if m == InitDerived {
		return "derived"
	}
	return "given"
}

// ConfidenceSet tracks per-analyst trust and the running sum of all confidences.
// After a successful Normalize the confidences sum to 1.
type ConfidenceSet struct {
	values     map[string]float64
	cumulative float64
	l          *applogger.Logger
}

// NewConfidenceSet returns an empty set.
func NewConfidenceSet() *ConfidenceSet {
	return &ConfidenceSet{values: make(map[string]float64)}
}

// SetLogger injects a structured logger used for ZeroConfidence warnings.
func (s *ConfidenceSet) SetLogger(l *applogger.Logger) { s.l = l }

// Add admits name. With InitDerived the given confidence is replaced by the current mean.
func (s *ConfidenceSet) Add(name string, confidence float64, mode InitMode) error {
	if _, ok := s.values[name]; ok {
		return fmt.Errorf("add %q: %w", name, ErrDuplicateAnalyst)
	}
	if mode == InitDerived && len(s.values) > 0 {
		confidence = s.mean()
	}
	s.values[name] = confidence
	s.cumulative += confidence
	s.normalizeOrWarn("add")
	return nil
}

// Remove evicts name and renormalizes the rest.
func (s *ConfidenceSet) Remove(name string) error {
	c, ok := s.values[name]
	if !ok {
		return fmt.Errorf("remove %q: %w", name, ErrAnalystNotFound)
	}
	s.cumulative -= c
	delete(s.values, name)
	s.normalizeOrWarn("remove")
	return nil
}

// Normalize divides every confidence by the cumulative sum.
// It returns ErrZeroConfidence, leaving the set untouched, when that sum is zero.
func (s *ConfidenceSet) Normalize() error {
	if len(s.values) == 0 {
		s.cumulative = 0
		return nil
	}
	if math.Abs(s.cumulative) < zeroTolerance {
		return ErrZeroConfidence
	}
	for k, c := range s.values {
		s.values[k] = c / s.cumulative
	}
	s.cumulative = 1.0
	return nil
}

// ResetUniform sets every confidence to 1/N.
func (s *ConfidenceSet) ResetUniform() {
	if len(s.values) == 0 {
		return
	}
	u := 1.0 / float64(len(s.values))
	for k := range s.values {
		s.values[k] = u
	}
	s.cumulative = 1.0
}

// Scale multiplies the confidence of name by factor. The set is not renormalized.
func (s *ConfidenceSet) Scale(name string, factor float64) error {
	c, ok := s.values[name]
	if !ok {
		return fmt.Errorf("scale %q: %w", name, ErrAnalystNotFound)
	}
	next := c * factor
	s.values[name] = next
	s.cumulative += next - c
	return nil
}

// Confidence returns the confidence of name and whether it is a member.
func (s *ConfidenceSet) Confidence(name string) (float64, bool) {
	c, ok := s.values[name]
	return c, ok
}

// Has reports whether name is a member.
func (s *ConfidenceSet) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Len returns the number of members.
func (s *ConfidenceSet) Len() int { return len(s.values) }

// Cumulative returns the running confidence sum.
func (s *ConfidenceSet) Cumulative() float64 { return s.cumulative }

// Names returns member names in lexical order.
func (s *ConfidenceSet) Names() []string {
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the confidences.
func (s *ConfidenceSet) Map() map[string]float64 {
	out := make(map[string]float64, len(s.values))
	for k, c := range s.values {
		out[k] = c
	}
	return out
}

func (s *ConfidenceSet) mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	t := 0.0
	for _, c := range s.values {
		t += c
	}
	return t / float64(len(s.values))
}

func (s *ConfidenceSet) normalizeOrWarn(op string) {
	if err := s.Normalize(); errors.Is(err, ErrZeroConfidence) && s.l != nil {
		s.l.Warn("confidence normalize skipped",
			applogger.String("op", op),
			applogger.Int("members", len(s.values)),
			applogger.Error(err),
		)
	}
}
