package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// METRICS - batch computation counters
// =============================================================================

var (
	metricComputeRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fee_engine",
		Name:      "compute_runs_total",
		Help:      "Number of batch fee computations invoked.",
	})
	metricVersionsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fee_engine",
		Name:      "versions_appended_total",
		Help:      "Number of new fee history versions appended.",
	})
	metricStudentsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fee_engine",
		Name:      "students_evaluated_total",
		Help:      "Number of students evaluated across all batch runs.",
	})
	metricStudentsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fee_engine",
		Name:      "students_skipped_total",
		Help:      "Number of students skipped because their class had no applicable fee structure.",
	})
	metricStudentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fee_engine",
		Name:      "students_failed_total",
		Help:      "Number of non-fatal per-student computation failures.",
	})
)

func recordComputeMetrics(result *ComputeResponse) {
	metricComputeRuns.Inc()
	metricVersionsAppended.Add(float64(result.Count))
	metricStudentsEvaluated.Add(float64(result.Evaluated))
	metricStudentsSkipped.Add(float64(result.Skipped))
	metricStudentsFailed.Add(float64(result.Failed))
}
