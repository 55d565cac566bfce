package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// newProducerMetrics registers on reg; a nil reg keeps the collectors unregistered.
func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orgtrader_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result.",
		}, []string{"topic", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orgtrader_kafka_producer_bytes_total",
			Help: "Payload bytes published.",
		}, []string{"topic"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orgtrader_kafka_producer_publish_seconds",
			Help:    "Publish latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *producerMetrics) observe(topic string, size int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, result).Inc()
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}

type consumerMetrics struct {
	queueDepth prometheus.Gauge
	handled    *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "orgtrader_kafka_consumer_queue_depth",
			Help: "Fetched messages waiting for a worker.",
		}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orgtrader_kafka_consumer_messages_total",
			Help: "Messages handled by outcome (ok, failed, dead_lettered).",
		}, []string{"topic", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orgtrader_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}
