package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/model"
)

type fakeEvents struct {
	recorded []string
}

func (f *fakeEvents) Record(ctx context.Context, eventType string, payload model.JSONB) error {
	f.recorded = append(f.recorded, eventType)
	return nil
}

func newEngineFixture() (*Engine, *machineFixture, *fakeEvents) {
	fx := newMachineFixture()
	events := &fakeEvents{}
	engine := NewEngine(fx.machine, fx.enrollments, events, fx.clock, 100, time.Second, zap.NewNop())
	return engine, fx, events
}

func TestTickProcessesAllDueEnrollments(t *testing.T) {
	engine, fx, events := newEngineFixture()
	tpl := fx.addTemplate()

	steps := model.StepList{
		{Type: model.StepEmail, Config: model.StepConfig{TemplateID: &tpl.ID}},
	}
	member := fx.addMember()
	first := fx.enroll(steps, 0, member.ID, fx.clock.now)
	second := fx.enroll(steps, 0, member.ID, fx.clock.now.Add(-time.Minute))
	fx.enroll(steps, 0, member.ID, fx.clock.now.Add(time.Hour)) // not due yet

	result, err := engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("expected 2 processed, got %d", result.ProcessedCount)
	}
	if len(fx.email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(fx.email.sent))
	}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		if fx.enrollments.rows[id].Status != model.EnrollmentCompleted {
			t.Fatalf("expected enrollment %s completed", id)
		}
	}
	if len(events.recorded) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(events.recorded))
	}
	for _, eventType := range events.recorded {
		if eventType != "enrollment_completed" {
			t.Fatalf("unexpected event type %q", eventType)
		}
	}
}

func TestTickIsolatesFailures(t *testing.T) {
	engine, fx, _ := newEngineFixture()
	tpl := fx.addTemplate()
	member := fx.addMember()

	// One misconfigured enrollment, one healthy.
	broken := fx.enroll(model.StepList{
		{Type: model.StepEmail, Config: model.StepConfig{}},
	}, 0, member.ID, fx.clock.now)
	healthy := fx.enroll(model.StepList{
		{Type: model.StepEmail, Config: model.StepConfig{TemplateID: &tpl.ID}},
	}, 0, member.ID, fx.clock.now)

	result, err := engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if result.ProcessedCount != 2 {
		t.Fatalf("expected both enrollments processed, got %d", result.ProcessedCount)
	}
	if fx.enrollments.rows[broken.ID].Status != model.EnrollmentFailed {
		t.Fatalf("expected broken enrollment parked")
	}
	if fx.enrollments.rows[healthy.ID].Status != model.EnrollmentCompleted {
		t.Fatalf("expected healthy enrollment completed despite sibling failure")
	}

	var failDetail bool
	for _, detail := range result.Details {
		if detail.EnrollmentID == broken.ID && detail.Outcome == OutcomeFailed && detail.Detail != "" {
			failDetail = true
		}
	}
	if !failDetail {
		t.Fatalf("expected failure detail in tick result, got %+v", result.Details)
	}
}

func TestTickWithNothingDue(t *testing.T) {
	engine, fx, events := newEngineFixture()
	tpl := fx.addTemplate()
	member := fx.addMember()
	fx.enroll(model.StepList{
		{Type: model.StepEmail, Config: model.StepConfig{TemplateID: &tpl.ID}},
	}, 0, member.ID, fx.clock.now.Add(time.Hour))

	result, err := engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if result.ProcessedCount != 0 || len(result.Details) != 0 {
		t.Fatalf("expected empty tick, got %+v", result)
	}
	if len(events.recorded) != 0 {
		t.Fatalf("expected no events on empty tick")
	}
}

func TestDelayThenEmailScenario(t *testing.T) {
	engine, fx, _ := newEngineFixture()
	tpl := fx.addTemplate()
	member := fx.addMember()

	// Enrolled into [delay(2h), email] with the delay's wake pre-installed.
	enrollment := fx.enroll(model.StepList{
		{Type: model.StepDelay, Config: model.StepConfig{DurationHours: 2}},
		{Type: model.StepEmail, Config: model.StepConfig{TemplateID: &tpl.ID}},
	}, 0, member.ID, fx.clock.now.Add(2*time.Hour))

	// Before the wake: nothing happens.
	result, err := engine.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if result.ProcessedCount != 0 {
		t.Fatalf("expected nothing due during the delay")
	}

	// The wake passes: the delay resolves, email becomes ready.
	fx.clock.now = fx.clock.now.Add(2 * time.Hour)
	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(fx.email.sent) != 0 {
		t.Fatalf("email must wait for the tick after the delay resolves")
	}

	// Next tick: the email goes out and the enrollment completes.
	if _, err := engine.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(fx.email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(fx.email.sent))
	}
	if fx.enrollments.rows[enrollment.ID].Status != model.EnrollmentCompleted {
		t.Fatalf("expected enrollment completed")
	}
}
