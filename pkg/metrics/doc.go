/*
Package metrics exposes Prometheus metrics for the keel control plane.

Metrics are declared as package variables and registered once in init().
The orchestration engine records cycle counts and durations, skipped cycles
(lock already held), engine-level error classes, and per-state action
transitions; the task queue records submissions and retries.

Serve the metrics endpoint with Handler:

	http.Handle("/metrics", metrics.Handler())

Use Timer to record durations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OrchestrateDuration)
*/
package metrics
