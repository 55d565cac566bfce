package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	epochsTotal *prometheus.CounterVec
	ordersTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	confidence  *prometheus.GaugeVec
	weight      *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		epochsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgtrader_epochs_total",
				Help: "Total number of processed epochs",
			},
			[]string{"ensemble", "triggered"},
		),
		ordersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgtrader_orders_total",
				Help: "Total number of orders submitted to the broker",
			},
			[]string{"instrument", "side"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgtrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgtrader_analyst_confidence",
				Help: "Normalized confidence of an analyst",
			},
			[]string{"analyst"},
		),
		weight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgtrader_blended_weight",
				Help: "Blended ensemble weight of an instrument",
			},
			[]string{"instrument"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgtrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEpoch counts a processed epoch.
func (r *Recorder) RecordEpoch(ensemble string, triggered bool) {
	t := "false"
	if triggered {
		t = "true"
	}
	r.epochsTotal.WithLabelValues(ensemble, t).Inc()
}

// RecordOrder counts a submitted order.
func (r *Recorder) RecordOrder(instr, side string) {
	r.ordersTotal.WithLabelValues(instr, side).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordConfidence sets the current confidence of an analyst.
func (r *Recorder) RecordConfidence(analyst string, confidence float64) {
	r.confidence.WithLabelValues(analyst).Set(confidence)
}

// RecordWeight sets the current blended weight of an instrument.
func (r *Recorder) RecordWeight(instr string, weight float64) {
	r.weight.WithLabelValues(instr).Set(weight)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
