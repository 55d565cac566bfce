package models

import (
	"strings"
	"time"
)

// AnalystReport is the status of one ensemble member.
type AnalystReport struct {
	Name       string                 `json:"name"`
	Confidence float64                `json:"confidence"`
	Weights    map[Instrument]float64 `json:"weights"`
	Unassigned float64                `json:"unassigned"`
	Score      *float64               `json:"score,omitempty"`
}

// EnsembleReport is the status of the whole ensemble after an epoch.
type EnsembleReport struct {
	Name       string                 `json:"name"`
	Epoch      int64                  `json:"epoch"`
	Timestamp  time.Time              `json:"timestamp"`
	Cumulative float64                `json:"cumulative"`
	Blended    map[Instrument]float64 `json:"blended"`
	Analysts   []AnalystReport        `json:"analysts"`
	Triggered  bool                   `json:"triggered"`
	Orders     int                    `json:"orders"`
}

// Analyst returns the member report with the given name. Names match case-insensitively,
// as member names are stored lower-cased.
func (r *EnsembleReport) Analyst(name string) (AnalystReport, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range r.Analysts {
		if a.Name == name {
			return a, true
		}
	}
	return AnalystReport{}, false
}
