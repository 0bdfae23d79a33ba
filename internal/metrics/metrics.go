package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_sends_total",
			Help: "Total number of delivery rounds by outcome",
		},
		[]string{"outcome"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relayd_send_duration_seconds",
			Help:    "Delivery round duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	jobsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayd_jobs_pending",
			Help: "Number of relay jobs still awaiting delivery",
		},
	)

	jobsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayd_jobs_purged_total",
			Help: "Total number of finished relay jobs removed by retention",
		},
	)

	markerConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayd_marker_conflicts_total",
			Help: "Total number of delivery rounds that found the identifier's marker already held",
		},
	)
)

// RecordSend records one delivery round and its outcome.
func RecordSend(outcome string, duration time.Duration) {
	sendsTotal.WithLabelValues(outcome).Inc()
	sendDuration.Observe(duration.Seconds())
}

// SetPendingJobs sets the pending-jobs gauge.
func SetPendingJobs(count int64) {
	jobsPending.Set(float64(count))
}

// RecordJobsPurged records finished jobs removed by the janitor.
func RecordJobsPurged(count int64) {
	jobsPurgedTotal.Add(float64(count))
}

// RecordMarkerConflict records a delivery round that ended on a contested
// in-flight marker.
func RecordMarkerConflict() {
	markerConflicts.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
