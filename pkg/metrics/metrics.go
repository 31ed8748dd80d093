// Package metrics provides Prometheus metrics for engine runs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RunBuckets spans run durations from one second to a day.
var RunBuckets = []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600, 12 * 3600, 24 * 3600}

var (
	// RunsStartedTotal counts launched engine processes by engine.
	RunsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosim_runs_started_total",
			Help: "Engine runs started",
		},
		[]string{"engine"},
	)

	// RunsCompletedTotal counts runs that reached a terminal state, by engine
	// and state (finished or errored).
	RunsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosim_runs_completed_total",
			Help: "Engine runs completed",
		},
		[]string{"engine", "state"},
	)

	// LaunchFailuresTotal counts processes that could not be started.
	LaunchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosim_launch_failures_total",
			Help: "Engine launch failures",
		},
		[]string{"engine"},
	)

	// RunDuration records wall-clock run time in seconds.
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biosim_run_duration_seconds",
			Help:    "Engine run duration",
			Buckets: RunBuckets,
		},
		[]string{"engine"},
	)

	// RunsActive tracks engine processes that are currently running.
	RunsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "biosim_runs_active",
			Help: "Engine runs in progress",
		},
		[]string{"engine"},
	)

	// PipelineStagesTotal counts executed pipeline stages by outcome.
	PipelineStagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosim_pipeline_stages_total",
			Help: "Pipeline stages executed",
		},
		[]string{"engine", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RunsStartedTotal,
		RunsCompletedTotal,
		LaunchFailuresTotal,
		RunDuration,
		RunsActive,
		PipelineStagesTotal,
	)
}

// WriteTextfile writes a snapshot of the default registry in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
