package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deletion_notifications_received_total",
			Help: "Inbound webhook notifications by outcome",
		},
		[]string{"outcome"},
	)

	DeletionRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deletion_runs_total",
			Help: "Deletion engine runs by terminal status",
		},
		[]string{"status"},
	)

	DocumentsPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deletion_documents_purged_total",
			Help: "Documents removed or anonymized by the deletion engine",
		},
		[]string{"policy"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deletion_run_duration_seconds",
			Help:    "Wall time of one deletion engine run",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(NotificationsReceived, DeletionRuns, DocumentsPurged, RunDuration)
}
