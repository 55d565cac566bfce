package ensemble

import (
	"errors"
	"fmt"

	"OrgTrader/internal/domain/models"
	applogger "OrgTrader/pkg/logger"
)

// ConfidenceUpdater applies the multiplicative-weights rule: each member's confidence is
// multiplied by its epoch score, then the set is renormalized.
type ConfidenceUpdater struct {
	eval *PerformanceEvaluator
	l    *applogger.Logger
}

// NewConfidenceUpdater builds an updater around eval.
func NewConfidenceUpdater(eval *PerformanceEvaluator) *ConfidenceUpdater {
	if eval == nil {
		eval = NewPerformanceEvaluator()
	}
	return &ConfidenceUpdater{eval: eval}
}

// SetLogger injects a structured logger.
func (u *ConfidenceUpdater) SetLogger(l *applogger.Logger) { u.l = l }

// Update scores every member of e between past and now and folds the scores into the
// confidences. past must be the snapshot of the previously processed epoch.
// Scoring errors leave every confidence untouched.
func (u *ConfidenceUpdater) Update(e *Ensemble, now, past models.Snapshot) (map[string]float64, error) {
	scores, err := u.eval.ScoreAll(e, now, past)
	if err != nil {
		return nil, fmt.Errorf("update confidences: %w", err)
	}
	for name, s := range scores {
		if err := e.conf.Scale(name, s); err != nil {
			return nil, fmt.Errorf("update confidences: %w", err)
		}
	}
	if err := e.conf.Normalize(); err != nil {
		if !errors.Is(err, ErrZeroConfidence) {
			return nil, err
		}
		if u.l != nil {
			u.l.Warn("confidences left unnormalized",
				applogger.String("ensemble", e.Name()),
				applogger.Error(err),
			)
		}
	}
	return scores, nil
}
