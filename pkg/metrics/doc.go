/*
Package metrics provides Prometheus metrics and component health tracking
for Strongroom.

All collectors are package-level variables registered in init(), so any
package can record observations without plumbing a registry. Metric names
carry the strongroom_ prefix.

# Metric groups

Reconciliation (recorded by pkg/worker):

	strongroom_reconciliation_jobs_active            gauge, per-process in-flight jobs
	strongroom_reconciliation_jobs_claimed_total     counter
	strongroom_reconciliation_jobs_finished_total    counter by status
	strongroom_reconciliation_jobs_swept_total       counter, stale recoveries
	strongroom_reconciliation_job_duration_seconds   histogram, claim → terminal
	strongroom_reconciliation_checkpoints_total      counter
	strongroom_reconciliation_transactions_processed_total  counter by chain_alias
	strongroom_reconciliation_audit_entries_total    counter by action

Workflow (recorded by pkg/workflow):

	strongroom_workflow_transitions_total            counter by event, to_state
	strongroom_workflow_concurrent_conflicts_total   counter, lost version races
	strongroom_workflow_invalid_transitions_total    counter, rejected events

Provider (recorded by pkg/provider):

	strongroom_provider_requests_total               counter by provider, operation, outcome
	strongroom_provider_request_duration_seconds     histogram by provider, operation

Store gauges (refreshed by the Collector from the database every 15s):

	strongroom_reconciliation_jobs                   gauge by status
	strongroom_workflows                             gauge by state

API and scheduler:

	strongroom_api_requests_total                    counter by method, status
	strongroom_api_request_duration_seconds          histogram by method
	strongroom_scheduler_ticks_total                 counter by outcome

# Timers

Timer wraps a start timestamp and feeds histograms:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JobDuration)

# Health tracking

The package also hosts the process health registry used by /healthz and
/readyz. Components report in with RegisterComponent/UpdateComponent;
GetReadiness treats "database" and "api" as critical:

	metrics.RegisterComponent("database", true, "")
	metrics.UpdateComponent("database", false, "connection refused")

HealthHandler, ReadyHandler and LivenessHandler provide the HTTP
endpoints; pkg/api mounts them.

# Scraping

Handler() exposes the standard promhttp handler; the API server mounts it
at /metrics.
*/
package metrics
