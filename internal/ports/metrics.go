package ports

// Metric names understood by the Observability adapter.
const (
	MetricSamplesAccepted = "kiosk_samples_accepted_total"
	MetricSamplesRejected = "kiosk_samples_rejected_total"
	MetricIngestLatency   = "kiosk_ingest_latency_seconds"

	MetricQueueLength  = "kiosk_queue_length"
	MetricQueueDropped = "kiosk_queue_dropped_total"

	MetricRollupKiosks          = "kiosk_rollup_kiosks_total"
	MetricRollupFailures        = "kiosk_rollup_failures_total"
	MetricRollupEmpty           = "kiosk_rollup_empty_total"
	MetricRollupDuration        = "kiosk_rollup_duration_seconds"
	MetricRollupPublishFailures = "kiosk_rollup_publish_failures_total"

	MetricQueryKioskFailures = "kiosk_query_kiosk_failures_total"

	MetricFetchSuccess       = "kiosk_fetch_success_total"
	MetricFetchFailures      = "kiosk_fetch_failures_total"
	MetricFetchLatency       = "kiosk_fetch_latency_seconds"
	MetricBreakerTransitions = "kiosk_breaker_transitions_total"
)
