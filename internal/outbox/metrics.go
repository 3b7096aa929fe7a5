package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DLQ outcomes recorded by the manager.
const (
	outcomeRequeued    = "requeued"
	outcomeRescheduled = "rescheduled"
	outcomeQuarantined = "quarantined"
)

var (
	claimedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "outbox",
		Name:      "events_claimed_total",
		Help:      "Outbox rows claimed for delivery.",
	})

	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Outbox events written to Kafka, by topic.",
	}, []string{"topic"})

	deadLetteredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "outbox",
		Name:      "events_dead_lettered_total",
		Help:      "Outbox events that could not be published and were moved to outbox_dlq, by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskflow",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent delivering and settling one claimed batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskflow",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the manager, by topic and outcome.",
	}, []string{"topic", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskflow",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "DLQ entries that are neither requeued nor quarantined.",
	})
)

func init() {
	prometheus.MustRegister(claimedCounter, publishedCounter, deadLetteredCounter, batchDuration, dlqOutcomeCounter, dlqBacklogGauge)
}

// refreshBacklog counts open DLQ entries across tenants.
func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
