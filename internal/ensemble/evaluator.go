package ensemble

import (
	"fmt"

	"OrgTrader/internal/domain/models"
)

// PerformanceEvaluator scores an analyst's realized return over one epoch.
type PerformanceEvaluator struct{}

// NewPerformanceEvaluator returns an evaluator.
func NewPerformanceEvaluator() *PerformanceEvaluator { return &PerformanceEvaluator{} }

// Score returns Σ weight × close(now) / close(past) over the analyst's instruments.
// 1.0 is flat; an empty allocation scores 0.
func (p *PerformanceEvaluator) Score(a *Analyst, now, past models.Snapshot) (float64, error) {
	score := 0.0
	for _, instr := range a.Weights().Instruments() {
		cur, ok := now.Close(instr)
		if !ok {
			return 0, fmt.Errorf("score %q: %s absent from current bars: %w", a.Name(), instr, ErrMissingPrice)
		}
		prev, ok := past.Close(instr)
		if !ok {
			return 0, fmt.Errorf("score %q: %s absent from previous bars: %w", a.Name(), instr, ErrMissingPrice)
		}
		if prev <= 0 {
			return 0, fmt.Errorf("score %q: %s previous close %v: %w", a.Name(), instr, prev, ErrMissingPrice)
		}
		w, _ := a.Weights().Weight(instr)
		score += w * cur / prev
	}
	return score, nil
}

// ScoreAll scores every member. The first error aborts the whole epoch.
func (p *PerformanceEvaluator) ScoreAll(e *Ensemble, now, past models.Snapshot) (map[string]float64, error) {
	scores := make(map[string]float64, e.Len())
	for _, a := range e.Analysts() {
		s, err := p.Score(a, now, past)
		if err != nil {
			return nil, err
		}
		scores[a.Name()] = s
	}
	return scores, nil
}
