package ensemble

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"OrgTrader/internal/domain/models"
)

// Status returns a human-readable dump of the analyst.
func (a *Analyst) Status() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status for %s\n", a.name)
	fmt.Fprintf(&b, "confidence: %.6f\n", a.confidence)
	for _, instr := range a.weights.Instruments() {
		w, _ := a.weights.Weight(instr)
		fmt.Fprintf(&b, "%s weights %s at %.6f\n", a.name, instr, w)
	}
	fmt.Fprintf(&b, "unassigned weight: %.6f\n", unassigned(a.weights))
	return b.String()
}

// Status returns a human-readable dump of the blended weights and member confidences.
func (e *Ensemble) Status() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ensemble %s (%d analysts)\n", e.name, len(e.members))
	blended := e.Weights()
	for _, instr := range sortedInstruments(blended) {
		fmt.Fprintf(&b, "  %s: %.6f\n", instr, blended[instr])
	}
	for _, a := range e.Analysts() {
		c, _ := e.conf.Confidence(a.Name())
		fmt.Fprintf(&b, "  analyst %s confidence %.6f\n", a.Name(), c)
	}
	return b.String()
}

// Report builds the structured status of the ensemble. scores may be nil.
func (e *Ensemble) Report(epoch int64, ts time.Time, scores map[string]float64) models.EnsembleReport {
	r := models.EnsembleReport{
		Name:       e.name,
		Epoch:      epoch,
		Timestamp:  ts,
		Cumulative: e.conf.Cumulative(),
		Blended:    e.Weights(),
		Analysts:   make([]models.AnalystReport, 0, len(e.members)),
	}
	for _, a := range e.Analysts() {
		c, _ := e.conf.Confidence(a.Name())
		ar := models.AnalystReport{
			Name:       a.Name(),
			Confidence: c,
			Weights:    a.Weights().Map(),
			Unassigned: unassigned(a.Weights()),
		}
		if s, ok := scores[a.Name()]; ok {
			s := s
			ar.Score = &s
		}
		r.Analysts = append(r.Analysts, ar)
	}
	return r
}

func sortedInstruments(m map[models.Instrument]float64) []models.Instrument {
	out := make([]models.Instrument, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unassigned(v *WeightVector) float64 {
	return math.Max(0, 1-v.Total())
}
