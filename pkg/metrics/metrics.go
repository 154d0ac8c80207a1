package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	HeartbeatsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_heartbeats_accepted_total",
			Help: "Total number of heartbeats accepted and stored",
		},
	)

	HeartbeatsReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_heartbeats_replayed_total",
			Help: "Total number of idempotent heartbeat replays",
		},
	)

	HeartbeatsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_heartbeats_rejected_total",
			Help: "Total number of rejected heartbeats by reason",
		},
		[]string{"reason"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_queue_depth",
			Help: "Number of pending derived-state jobs",
		},
	)

	JobsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_jobs_processed_total",
			Help: "Total number of jobs completed by the worker",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_jobs_failed_total",
			Help: "Total number of job attempts that ended in mark_failed",
		},
	)

	JobsOverAttemptLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_jobs_over_attempt_limit",
			Help: "Claimed jobs whose attempt count exceeds the configured maximum",
		},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_job_duration_seconds",
			Help:    "Time taken to process one derived-state job in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Derived-state metrics
	ServersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_servers_total",
			Help: "Number of servers by effective status",
		},
		[]string{"status"},
	)

	AnomaliesFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_anomalies_flagged_total",
			Help: "Total number of player-spike anomaly detections",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_api_requests_total",
			Help: "Total number of API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(HeartbeatsAccepted)
	prometheus.MustRegister(HeartbeatsReplayed)
	prometheus.MustRegister(HeartbeatsRejected)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(JobsProcessed)
	prometheus.MustRegister(JobsFailed)
	prometheus.MustRegister(JobsOverAttemptLimit)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(ServersByStatus)
	prometheus.MustRegister(AnomaliesFlagged)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
