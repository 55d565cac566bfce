package usecase

import (
	"fmt"

	"OrgTrader/internal/domain/models"
	"OrgTrader/internal/ensemble"
	"OrgTrader/pkg/config"
	applogger "OrgTrader/pkg/logger"
)

// BuildEnsemble creates the ensemble described by configuration. Each analyst's weights are
// assigned in listed order, then the analyst is admitted with the given init mode.
func BuildEnsemble(name, initMode string, analysts []config.AnalystConfig, l *applogger.Logger) (*ensemble.Ensemble, error) {
	mode, err := ensemble.ParseInitMode(initMode)
	if err != nil {
		return nil, err
	}

	e := ensemble.New(name)
	if l != nil {
		e.SetLogger(l)
	}
	for _, ac := range analysts {
		a := ensemble.NewAnalyst(ac.Name, ensemble.WithConfidence(ac.Confidence))
		for _, w := range ac.Weights {
			if err := a.AssignWeight(models.Instrument(w.Instrument), w.Weight); err != nil {
				return nil, fmt.Errorf("analyst %q: %w", ac.Name, err)
			}
		}
		if err := e.AddAnalyst(a, mode); err != nil {
			return nil, err
		}
	}
	return e, nil
}
