package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline collectors, exposed at /metrics.
var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidora_transcode_jobs_started_total",
		Help: "Transcode jobs picked up by a worker.",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidora_transcode_jobs_completed_total",
		Help: "Transcode jobs that finished in ready.",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidora_transcode_jobs_failed_total",
		Help: "Transcode jobs that ended in processing_failed.",
	})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidora_transcode_job_duration_seconds",
		Help:    "Wall-clock duration of a full transcode pipeline run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ViewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidora_views_recorded_total",
		Help: "Watch-history rows inserted.",
	})

	StaleVideosSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidora_stale_videos_swept_total",
		Help: "In-flight videos force-failed by the cleanup sweeper.",
	})
)
