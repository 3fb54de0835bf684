package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation job metrics
	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strongroom_reconciliation_jobs_active",
			Help: "Number of jobs currently processed by this worker process",
		},
	)

	JobsClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_jobs_claimed_total",
			Help: "Total number of pending jobs claimed by this worker process",
		},
	)

	JobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_jobs_finished_total",
			Help: "Total number of jobs driven to a terminal status, by status",
		},
		[]string{"status"},
	)

	JobsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_jobs_swept_total",
			Help: "Total number of stale running jobs returned to pending",
		},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strongroom_reconciliation_job_duration_seconds",
			Help:    "Wall-clock time from claim to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
		},
	)

	CheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_checkpoints_total",
			Help: "Total number of job progress checkpoints persisted",
		},
	)

	TransactionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_transactions_processed_total",
			Help: "Total provider transactions examined, by chain",
		},
		[]string{"chain_alias"},
	)

	AuditEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_reconciliation_audit_entries_total",
			Help: "Total audit entries appended, by action",
		},
		[]string{"action"},
	)

	// Store-derived gauges, refreshed by the Collector
	JobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strongroom_reconciliation_jobs",
			Help: "Reconciliation jobs in the store, by status",
		},
		[]string{"status"},
	)

	WorkflowsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strongroom_workflows",
			Help: "Workflows in the store, by state",
		},
		[]string{"state"},
	)

	// Workflow orchestrator metrics
	WorkflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_workflow_transitions_total",
			Help: "Total accepted workflow transitions, by event and target state",
		},
		[]string{"event", "to_state"},
	)

	WorkflowConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strongroom_workflow_concurrent_conflicts_total",
			Help: "Total version-conditional updates that matched zero rows",
		},
	)

	WorkflowRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strongroom_workflow_invalid_transitions_total",
			Help: "Total events rejected as illegal from the current state",
		},
	)

	// Provider metrics
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_provider_requests_total",
			Help: "Total provider gateway calls, by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strongroom_provider_request_duration_seconds",
			Help:    "Provider gateway call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strongroom_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduler metrics
	SchedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strongroom_scheduler_ticks_total",
			Help: "Scheduler ticks, by outcome (scheduled, lock_held, error)",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(JobsClaimedTotal)
	prometheus.MustRegister(JobsFinishedTotal)
	prometheus.MustRegister(JobsSweptTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(CheckpointsTotal)
	prometheus.MustRegister(TransactionsProcessedTotal)
	prometheus.MustRegister(AuditEntriesTotal)
	prometheus.MustRegister(JobsByStatus)
	prometheus.MustRegister(WorkflowsByState)
	prometheus.MustRegister(WorkflowTransitionsTotal)
	prometheus.MustRegister(WorkflowConflictsTotal)
	prometheus.MustRegister(WorkflowRejectionsTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulerTicksTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
