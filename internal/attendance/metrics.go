package attendance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_submissions_total",
		Help: "Submission attempts by terminal outcome.",
	}, []string{"outcome"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_pipeline_duration_seconds",
		Help:    "End-to-end submission pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})
)

func observePipeline(d time.Duration) {
	pipelineDuration.Observe(d.Seconds())
}
