package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle Metrics
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotelist_cycles_total",
		Help: "The total number of sync cycles started",
	})
	CycleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotelist_cycle_errors_total",
		Help: "The total number of failed sync cycles by failing stage",
	}, []string{"stage"})
	SkippedTriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotelist_skipped_triggers_total",
		Help: "The total number of triggers ignored because a cycle was still running",
	})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotelist_cycle_duration_seconds",
		Help:    "Duration of sync cycles",
		Buckets: prometheus.DefBuckets,
	})

	// Mirror Metrics
	RowsMirrored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotelist_rows_mirrored",
		Help: "Number of rows written to the sheet by the last successful mirror",
	})

	// Detector Metrics
	Watermark = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quotelist_watermark",
		Help: "Highest row id already considered for notification",
	})
	NewRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotelist_new_rows_total",
		Help: "The total number of new rows detected",
	})
	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotelist_notifications_sent_total",
		Help: "The total number of notifications delivered",
	})
	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotelist_notifications_failed_total",
		Help: "The total number of notifications that failed to deliver",
	})
)
