package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/taskflow/internal/domain"
)

var (
	persistedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskflow",
		Subsystem: "persistence",
		Name:      "last_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent write, labeled by entity.",
	}, []string{"entity"})
	auditedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskflow",
		Subsystem: "persistence",
		Name:      "last_event_audited_timestamp_seconds",
		Help:      "Unix timestamp of the most recent event written to the audit log by the consumer.",
	})
)

func init() {
	prometheus.MustRegister(persistedGauge, auditedGauge)
}

// RecordPersisted updates the persistence watermark gauge for an entity kind.
func RecordPersisted(kind domain.EntityKind, ts time.Time) {
	if ts.IsZero() {
		return
	}
	persistedGauge.WithLabelValues(string(kind)).Set(float64(ts.Unix()))
}

// RecordAudited updates the audit watermark gauge.
func RecordAudited(ts time.Time) {
	if ts.IsZero() {
		return
	}
	auditedGauge.Set(float64(ts.Unix()))
}
