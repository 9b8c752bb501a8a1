package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Orchestration metrics
	OrchestrateCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_orchestrate_cycles_total",
			Help: "Total number of orchestration cycles started",
		},
	)

	OrchestrateLockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_orchestrate_locked_total",
			Help: "Cycles skipped because the cluster lock was already held",
		},
	)

	OrchestrateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keel_orchestrate_duration_seconds",
			Help:    "Orchestration cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OrchestrateErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_orchestrate_errors_total",
			Help: "Orchestration cycles aborted by an engine-level error",
		},
		[]string{"class"},
	)

	// Action metrics
	ActionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_action_transitions_total",
			Help: "Total number of action state transitions by target state",
		},
		[]string{"state"},
	)

	ActionTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_action_timeouts_total",
			Help: "Total number of actions failed for exceeding their timeout",
		},
	)

	// Task queue metrics
	TasksSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keel_tasks_submitted_total",
			Help: "Total number of tasks submitted by queue",
		},
		[]string{"queue"},
	)

	TaskRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keel_task_retries_total",
			Help: "Total number of task executions retried after failure",
		},
	)

	// Coordination metrics
	ElectionPrimary = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keel_election_is_primary",
			Help: "Whether this node is the election primary (1 = primary)",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(OrchestrateCyclesTotal)
	prometheus.MustRegister(OrchestrateLockedTotal)
	prometheus.MustRegister(OrchestrateDuration)
	prometheus.MustRegister(OrchestrateErrorsTotal)
	prometheus.MustRegister(ActionTransitionsTotal)
	prometheus.MustRegister(ActionTimeoutsTotal)
	prometheus.MustRegister(TasksSubmittedTotal)
	prometheus.MustRegister(TaskRetriesTotal)
	prometheus.MustRegister(ElectionPrimary)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
