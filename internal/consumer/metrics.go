package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeHandled   = "handled"
	outcomeFailed    = "failed"
	outcomeMalformed = "malformed"
)

var (
	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "consumer",
		Name:      "events_total",
		Help:      "Consumed records by topic, event type and outcome (handled, failed, malformed).",
	}, []string{"topic", "event_type", "outcome"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskflow",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Time spent in the handler per record, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	consumedAtGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskflow",
		Subsystem: "consumer",
		Name:      "last_handled_record_timestamp_seconds",
		Help:      "Kafka timestamp of the newest record handled per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(eventsCounter, handleDuration, consumedAtGauge)
}

func observe(event Event, outcome string, took time.Duration) {
	eventsCounter.WithLabelValues(event.Topic, event.EventType, outcome).Inc()
	if outcome == outcomeMalformed {
		return
	}
	handleDuration.WithLabelValues(event.Topic).Observe(took.Seconds())
	if outcome == outcomeHandled && !event.Timestamp.IsZero() {
		consumedAtGauge.WithLabelValues(event.Topic).Set(float64(event.Timestamp.Unix()))
	}
}
