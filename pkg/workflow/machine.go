package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/model"
)

type EnrollmentStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.WorkflowEnrollment, error)
	AdvanceStep(ctx context.Context, id uuid.UUID, fromIndex, toIndex int, nextExecutionAt time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, fromIndex int) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, fromIndex int, reason string) (bool, error)
}

type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
}

type TemplateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.EmailTemplate, error)
}

type RewardStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reward, error)
	CreateRedemption(ctx context.Context, redemption *model.Redemption) error
}

type Outcome string

const (
	// OutcomeAdvanced: the step ran (or a delay resolved) and the pointer moved.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeCompleted: the enrollment ran out of steps and was terminated.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetry: a transient failure; state untouched, next tick retries.
	OutcomeRetry Outcome = "retry"
	// OutcomeFailed: a permanent failure; the enrollment was parked.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped: a concurrent invocation advanced the enrollment first.
	OutcomeSkipped Outcome = "skipped"
)

// StepMachine executes at most one step transition per enrollment per tick.
//
// A delay step performs no action of its own: its wait was installed by the
// preceding advance, so arriving at a delay with a due wake time just means
// "proceed". Non-delay steps use advance-after-success, which makes a failed
// step retry on the next tick with no compensation logic.
type StepMachine struct {
	enrollments EnrollmentStore
	profiles    ProfileStore
	templates   TemplateStore
	rewards     RewardStore
	email       campaign.EmailSender
	push        campaign.PushSender
	alerts      campaign.Alerter
	clock       campaign.Clock
	logger      *zap.Logger
}

func NewStepMachine(enrollments EnrollmentStore, profiles ProfileStore, templates TemplateStore, rewards RewardStore, email campaign.EmailSender, push campaign.PushSender, alerts campaign.Alerter, clock campaign.Clock, logger *zap.Logger) *StepMachine {
	return &StepMachine{
		enrollments: enrollments,
		profiles:    profiles,
		templates:   templates,
		rewards:     rewards,
		email:       email,
		push:        push,
		alerts:      alerts,
		clock:       clock,
		logger:      logger,
	}
}

// Process evaluates one due enrollment and applies at most one transition.
func (m *StepMachine) Process(ctx context.Context, enrollment *model.WorkflowEnrollment) (Outcome, error) {
	if enrollment.Workflow == nil {
		return m.fail(ctx, enrollment, "workflow definition missing")
	}

	steps := enrollment.Workflow.Steps
	index := enrollment.CurrentStepIndex

	if index >= len(steps) {
		return m.complete(ctx, enrollment)
	}

	step := steps[index]
	switch step.Type {
	case model.StepDelay:
		// The wait already elapsed; advance past it.
		return m.advance(ctx, enrollment, steps)
	case model.StepEmail:
		if err := m.sendEmail(ctx, enrollment, step); err != nil {
			return m.stepFailure(ctx, enrollment, step, err)
		}
		return m.advance(ctx, enrollment, steps)
	case model.StepReward:
		if err := m.grantReward(ctx, enrollment, step); err != nil {
			return m.stepFailure(ctx, enrollment, step, err)
		}
		return m.advance(ctx, enrollment, steps)
	default:
		return m.fail(ctx, enrollment, fmt.Sprintf("unknown step type %q", step.Type))
	}
}

// advance moves the pointer to the next step. Advancing into a delay installs
// its timer immediately, so chained delays resolve without a wasted tick;
// advancing into anything else marks it ready for the next tick.
func (m *StepMachine) advance(ctx context.Context, enrollment *model.WorkflowEnrollment, steps model.StepList) (Outcome, error) {
	fromIndex := enrollment.CurrentStepIndex
	nextIndex := fromIndex + 1

	if nextIndex >= len(steps) {
		return m.complete(ctx, enrollment)
	}

	now := m.clock.Now()
	nextExecutionAt := now
	if next := steps[nextIndex]; next.Type == model.StepDelay {
		nextExecutionAt = now.Add(time.Duration(next.Config.DurationHours) * time.Hour)
	}

	moved, err := m.enrollments.AdvanceStep(ctx, enrollment.ID, fromIndex, nextIndex, nextExecutionAt)
	if err != nil {
		return OutcomeRetry, &campaign.RepositoryError{Op: "advance enrollment", Err: err}
	}
	if !moved {
		return OutcomeSkipped, nil
	}
	return OutcomeAdvanced, nil
}

func (m *StepMachine) complete(ctx context.Context, enrollment *model.WorkflowEnrollment) (Outcome, error) {
	done, err := m.enrollments.Complete(ctx, enrollment.ID, enrollment.CurrentStepIndex)
	if err != nil {
		return OutcomeRetry, &campaign.RepositoryError{Op: "complete enrollment", Err: err}
	}
	if !done {
		return OutcomeSkipped, nil
	}
	return OutcomeCompleted, nil
}

// stepFailure routes a step error: permanent failures park the enrollment,
// transient ones leave it untouched for the next tick.
func (m *StepMachine) stepFailure(ctx context.Context, enrollment *model.WorkflowEnrollment, step model.Step, err error) (Outcome, error) {
	if campaign.IsPermanent(err) {
		m.alerts.Alert(ctx, "workflow step failed permanently",
			fmt.Sprintf("enrollment %s, step %d (%s): %v", enrollment.ID, enrollment.CurrentStepIndex, step.Type, err))
		outcome, failErr := m.fail(ctx, enrollment, err.Error())
		if failErr != nil {
			return outcome, failErr
		}
		return outcome, err
	}
	return OutcomeRetry, err
}

func (m *StepMachine) fail(ctx context.Context, enrollment *model.WorkflowEnrollment, reason string) (Outcome, error) {
	parked, err := m.enrollments.MarkFailed(ctx, enrollment.ID, enrollment.CurrentStepIndex, reason)
	if err != nil {
		return OutcomeRetry, &campaign.RepositoryError{Op: "mark enrollment failed", Err: err}
	}
	if !parked {
		return OutcomeSkipped, nil
	}
	return OutcomeFailed, nil
}

func (m *StepMachine) sendEmail(ctx context.Context, enrollment *model.WorkflowEnrollment, step model.Step) error {
	if step.Config.TemplateID == nil {
		return &campaign.ValidationError{Reason: "email step has no template_id"}
	}

	user, err := m.profiles.GetByID(ctx, enrollment.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &campaign.NotFoundError{Kind: "profile", ID: enrollment.UserID.String()}
		}
		return &campaign.RepositoryError{Op: "profile lookup", Err: err}
	}
	if user.Email == nil || *user.Email == "" {
		return &campaign.ValidationError{Reason: "profile has no email"}
	}

	template, err := m.templates.GetByID(ctx, *step.Config.TemplateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &campaign.NotFoundError{Kind: "email template", ID: step.Config.TemplateID.String()}
		}
		return &campaign.RepositoryError{Op: "template lookup", Err: err}
	}

	subject := template.Subject
	if step.Config.SubjectOverride != "" {
		subject = step.Config.SubjectOverride
	}
	body := campaign.RenderTemplate(template.ContentHTML, user.FullName)

	if err := m.email.Send(ctx, *user.Email, subject, body); err != nil {
		return &campaign.TransientError{Op: "email send", Err: err}
	}
	return nil
}

func (m *StepMachine) grantReward(ctx context.Context, enrollment *model.WorkflowEnrollment, step model.Step) error {
	if step.Config.RewardID == nil {
		return &campaign.ValidationError{Reason: "reward step has no reward_id"}
	}

	reward, err := m.rewards.GetByID(ctx, *step.Config.RewardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &campaign.NotFoundError{Kind: "reward", ID: step.Config.RewardID.String()}
		}
		return &campaign.RepositoryError{Op: "reward lookup", Err: err}
	}

	redemption := &model.Redemption{
		ID:          uuid.New(),
		UserID:      enrollment.UserID,
		RewardID:    reward.ID,
		PointsSpent: 0,
		Status:      model.RedemptionApproved,
		VoucherCode: campaign.VoucherCode(),
	}
	if err := m.rewards.CreateRedemption(ctx, redemption); err != nil {
		return &campaign.RepositoryError{Op: "redemption insert", Err: err}
	}

	m.push.Send(ctx, enrollment.UserID, "You've received a reward", reward.Name, "/rewards")

	return nil
}
