package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AutomationCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perkflow_automation_candidates_total",
			Help: "Candidates evaluated per automation type",
		},
		[]string{"type"},
	)

	AutomationSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perkflow_automation_sent_total",
			Help: "Side effects executed per automation type",
		},
		[]string{"type"},
	)

	AutomationSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perkflow_automation_skipped_total",
			Help: "Candidates skipped because the window slot was already claimed",
		},
		[]string{"type"},
	)

	AutomationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perkflow_automation_failures_total",
			Help: "Per-candidate failures by automation type and class",
		},
		[]string{"type", "class"},
	)

	AutomationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "perkflow_automation_run_duration_seconds",
			Help:    "Duration of one trigger-automation pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	WorkflowSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perkflow_workflow_steps_total",
			Help: "Workflow step transitions by step type and outcome",
		},
		[]string{"step_type", "outcome"},
	)

	WorkflowTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "perkflow_workflow_tick_duration_seconds",
			Help:    "Duration of one workflow tick",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	EnrollmentsDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "perkflow_workflow_enrollments_due",
			Help: "Enrollments picked up by the latest tick",
		},
	)
)
