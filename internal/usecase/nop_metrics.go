package usecase

type nopMetrics struct{}

func (nopMetrics) RecordEpoch(string, bool) {}
func (nopMetrics) RecordOrder(string, string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordConfidence(string, float64) {}
func (nopMetrics) RecordWeight(string, float64) {}
func (nopMetrics) RecordLatency(string, float64) {}
