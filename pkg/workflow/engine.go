package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/metrics"
	"github.com/perkflow/perkflow/pkg/model"
)

type EnrollmentOutcome struct {
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	Outcome      Outcome   `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
}

type TickResult struct {
	ProcessedCount int                 `json:"processedCount"`
	Details        []EnrollmentOutcome `json:"details"`
}

// Engine runs the step machine over all currently-due enrollments. One tick
// is a single synchronous pass; an enrollment failure never stops the rest of
// the batch.
type Engine struct {
	machine     *StepMachine
	enrollments EnrollmentStore
	events      campaign.EventRecorder
	clock       campaign.Clock
	logger      *zap.Logger

	batchSize   int
	itemTimeout time.Duration
}

func NewEngine(machine *StepMachine, enrollments EnrollmentStore, events campaign.EventRecorder, clock campaign.Clock, batchSize int, itemTimeout time.Duration, logger *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 500
	}
	if itemTimeout <= 0 {
		itemTimeout = 15 * time.Second
	}
	return &Engine{
		machine:     machine,
		enrollments: enrollments,
		events:      events,
		clock:       clock,
		logger:      logger,
		batchSize:   batchSize,
		itemTimeout: itemTimeout,
	}
}

// Tick processes every due enrollment once. Safe to invoke redundantly: an
// overlapping tick loses the compare-and-swap and records a skip.
func (e *Engine) Tick(ctx context.Context) (*TickResult, error) {
	start := e.clock.Now()
	defer func() {
		metrics.WorkflowTickDuration.Observe(time.Since(start).Seconds())
	}()

	due, err := e.enrollments.ListDue(ctx, start, e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due enrollments: %w", err)
	}
	metrics.EnrollmentsDue.Set(float64(len(due)))

	result := &TickResult{Details: []EnrollmentOutcome{}}
	if len(due) == 0 {
		return result, nil
	}

	for i := range due {
		enrollment := &due[i]

		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		outcome, stepErr := e.machine.Process(itemCtx, enrollment)
		cancel()

		detail := EnrollmentOutcome{EnrollmentID: enrollment.ID, Outcome: outcome}
		if stepErr != nil {
			detail.Detail = stepErr.Error()
			e.logger.Warn("enrollment step failed",
				zap.String("enrollment_id", enrollment.ID.String()),
				zap.String("outcome", string(outcome)),
				zap.Error(stepErr))
		}
		result.Details = append(result.Details, detail)
		result.ProcessedCount++

		e.observe(ctx, enrollment, outcome)
	}

	return result, nil
}

func (e *Engine) observe(ctx context.Context, enrollment *model.WorkflowEnrollment, outcome Outcome) {
	stepType := "end"
	if enrollment.Workflow != nil && enrollment.CurrentStepIndex < len(enrollment.Workflow.Steps) {
		stepType = string(enrollment.Workflow.Steps[enrollment.CurrentStepIndex].Type)
	}
	metrics.WorkflowSteps.WithLabelValues(stepType, string(outcome)).Inc()

	if e.events == nil {
		return
	}
	if outcome != OutcomeAdvanced && outcome != OutcomeCompleted && outcome != OutcomeFailed {
		return
	}
	payload := model.JSONB{
		"enrollment_id": enrollment.ID.String(),
		"workflow_id":   enrollment.WorkflowID.String(),
		"user_id":       enrollment.UserID.String(),
		"step_index":    enrollment.CurrentStepIndex,
		"outcome":       string(outcome),
	}
	if err := e.events.Record(ctx, "enrollment_"+string(outcome), payload); err != nil {
		e.logger.Warn("failed to record enrollment event", zap.Error(err))
	}
}
