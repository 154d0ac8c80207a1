/*
Package metrics provides Prometheus instrumentation for Beacon.

All collectors are package-level and registered in init(), exposed over
HTTP via Handler() on the ingest server's /metrics endpoint.

# Metric Groups

Ingest:
  - beacon_heartbeats_accepted_total: stored heartbeats
  - beacon_heartbeats_replayed_total: idempotent replays (not errors)
  - beacon_heartbeats_rejected_total{reason}: rejections by reason code

Queue / worker:
  - beacon_queue_depth: pending jobs (set each poll)
  - beacon_jobs_processed_total / beacon_jobs_failed_total
  - beacon_job_duration_seconds: per-job processing histogram

Derived state:
  - beacon_servers_total{status}: servers by effective status
  - beacon_anomalies_flagged_total: player-spike detections

API:
  - beacon_api_requests_total{endpoint,status}
  - beacon_api_request_duration_seconds{endpoint}

# Usage

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JobDuration)
	metrics.JobsProcessed.Inc()

	metrics.HeartbeatsRejected.WithLabelValues("invalid_signature").Inc()
*/
package metrics
