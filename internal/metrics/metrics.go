// Package metrics exposes the engine's Prometheus collectors, served at
// /metrics by the status server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TicksTotal counts completed scheduler ticks.
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_ticks_total",
			Help: "Scheduler ticks completed",
		},
	)

	// SnapshotFailures counts market snapshot fetch failures per pair.
	SnapshotFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_snapshot_failures_total",
			Help: "Market snapshot fetch failures",
		},
		[]string{"pair"},
	)

	// ActionsTotal counts evaluator actions by side.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_actions_total",
			Help: "Actions proposed by the evaluator",
		},
		[]string{"side"},
	)

	// ExecutionsTotal counts dispatcher outcomes by status.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_executions_total",
			Help: "Execution records by terminal status",
		},
		[]string{"status"},
	)

	// PlansPaused tracks how many plans are currently paused.
	PlansPaused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_plans_paused",
			Help: "Plans paused due to invalid rule state",
		},
	)

	// Drawdown exposes the current drop from the running high per pair.
	Drawdown = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_ath_drawdown",
			Help: "Current drawdown from the running high, as a fraction",
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		SnapshotFailures,
		ActionsTotal,
		ExecutionsTotal,
		PlansPaused,
		Drawdown,
	)
}
