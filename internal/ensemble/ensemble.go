package ensemble

import (
	"fmt"
	"sort"

	"OrgTrader/internal/domain/models"
	applogger "OrgTrader/pkg/logger"
)

// Ensemble blends the allocations of its members weighted by their confidence.
// Membership is owned here; analysts carry no reference back to the ensemble.
type Ensemble struct {
	name    string
	members map[string]*Analyst
	conf    *ConfidenceSet
	l       *applogger.Logger
}

// New creates an empty ensemble.
func New(name string) *Ensemble {
	return &Ensemble{
		name:    name,
		members: make(map[string]*Analyst),
		conf:    NewConfidenceSet(),
	}
}

// SetLogger injects a structured logger.
func (e *Ensemble) SetLogger(l *applogger.Logger) {
	e.l = l
	e.conf.SetLogger(l)
}

// Name returns the ensemble name.
func (e *Ensemble) Name() string { return e.name }

// Confidences exposes the confidence bookkeeping.
func (e *Ensemble) Confidences() *ConfidenceSet { return e.conf }

// AddAnalyst admits a and renormalizes the confidences.
func (e *Ensemble) AddAnalyst(a *Analyst, mode InitMode) error {
	if _, ok := e.members[a.Name()]; ok {
		return fmt.Errorf("add analyst %q: %w", a.Name(), ErrDuplicateAnalyst)
	}
	if err := e.conf.Add(a.Name(), a.Confidence(), mode); err != nil {
		return fmt.Errorf("add analyst: %w", err)
	}
	e.members[a.Name()] = a
	if e.l != nil {
		c, _ := e.conf.Confidence(a.Name())
		e.l.Info("analyst admitted",
			applogger.String("ensemble", e.name),
			applogger.String("analyst", a.Name()),
			applogger.String("mode", mode.String()),
			applogger.Float64("confidence", c),
		)
	}
	return nil
}

// RemoveAnalyst evicts the member called name.
func (e *Ensemble) RemoveAnalyst(name string) error {
	name = NormalizeName(name)
	if _, ok := e.members[name]; !ok {
		return fmt.Errorf("remove analyst %q: %w", name, ErrAnalystNotFound)
	}
	if err := e.conf.Remove(name); err != nil {
		return fmt.Errorf("remove analyst: %w", err)
	}
	delete(e.members, name)
	if e.l != nil {
		e.l.Info("analyst removed",
			applogger.String("ensemble", e.name),
			applogger.String("analyst", name),
		)
	}
	return nil
}

// Analyst returns the member called name.
func (e *Ensemble) Analyst(name string) (*Analyst, bool) {
	a, ok := e.members[NormalizeName(name)]
	return a, ok
}

// Analysts returns the members ordered by name.
func (e *Ensemble) Analysts() []*Analyst {
	out := make([]*Analyst, 0, len(e.members))
	for _, name := range e.conf.Names() {
		if a, ok := e.members[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of members.
func (e *Ensemble) Len() int { return len(e.members) }

// Confidence returns the in-ensemble confidence of name.
func (e *Ensemble) Confidence(name string) (float64, bool) {
	return e.conf.Confidence(NormalizeName(name))
}

// ResetConfidence gives every member the same confidence.
func (e *Ensemble) ResetConfidence() { e.conf.ResetUniform() }

// Weights computes the blended allocation from scratch. The result may sum to more
// than 1 because members' allocations overlap freely.
func (e *Ensemble) Weights() map[models.Instrument]float64 {
	out := make(map[models.Instrument]float64)
	for name, a := range e.members {
		c, _ := e.conf.Confidence(name)
		for _, instr := range a.Weights().Instruments() {
			w, _ := a.Weights().Weight(instr)
			out[instr] += c * w
		}
	}
	return out
}

// Instruments returns every instrument held by at least one member, in lexical order.
func (e *Ensemble) Instruments() []models.Instrument {
	seen := make(map[models.Instrument]struct{})
	for _, a := range e.members {
		for _, instr := range a.Weights().Instruments() {
			seen[instr] = struct{}{}
		}
	}
	out := make([]models.Instrument, 0, len(seen))
	for instr := range seen {
		out = append(out, instr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
