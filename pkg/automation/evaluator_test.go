package automation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/perkflow/perkflow/pkg/model"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestWelcomeLookbackWindow(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	profiles := &fakeProfiles{profiles: []model.Profile{
		newMember("recent@example.com", clock.now.AddDate(0, 0, -2)),
		newMember("old@example.com", clock.now.AddDate(0, 0, -10)),
	}}
	evaluator := NewEvaluator(profiles, &fakeCheckIns{}, clock, 3, 30)

	auto := welcomeAutomation()
	candidates, err := evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 1 || *candidates[0].Email != "recent@example.com" {
		t.Fatalf("expected only the recent signup, got %+v", candidates)
	}
}

func TestWelcomeLookbackOverride(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}
	profiles := &fakeProfiles{profiles: []model.Profile{
		newMember("old@example.com", clock.now.AddDate(0, 0, -10)),
	}}
	evaluator := NewEvaluator(profiles, &fakeCheckIns{}, clock, 3, 30)

	auto := welcomeAutomation()
	auto.TriggerSettings.LookbackDays = 14
	candidates, err := evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected wider lookback to include the member, got %d", len(candidates))
	}
}

func TestBirthdayMonthMatch(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}

	marchMember := newMember("march@example.com", clock.now.AddDate(-1, 0, 0))
	marchMember.Birthday = timePtr(time.Date(1990, time.March, 2, 0, 0, 0, 0, time.UTC))
	aprilMember := newMember("april@example.com", clock.now.AddDate(-1, 0, 0))
	aprilMember.Birthday = timePtr(time.Date(1985, time.April, 20, 0, 0, 0, 0, time.UTC))

	profiles := &fakeProfiles{profiles: []model.Profile{marchMember, aprilMember}}
	evaluator := NewEvaluator(profiles, &fakeCheckIns{}, clock, 3, 30)

	auto := model.Automation{Type: model.AutomationBirthday, Name: "Birthday Treat"}
	candidates, err := evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 1 || *candidates[0].Email != "march@example.com" {
		t.Fatalf("expected only the march birthday, got %+v", candidates)
	}
}

func TestWinBackRequiresHistoricalVisit(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}

	lapsed := newMember("lapsed@example.com", clock.now.AddDate(-1, 0, 0))
	active := newMember("active@example.com", clock.now.AddDate(-1, 0, 0))
	neverVisited := newMember("never@example.com", clock.now.AddDate(-1, 0, 0))

	checkIns := &fakeCheckIns{byUser: map[uuid.UUID][]time.Time{
		lapsed.ID: {clock.now.AddDate(0, 0, -60)},
		active.ID: {clock.now.AddDate(0, 0, -60), clock.now.AddDate(0, 0, -5)},
	}}
	profiles := &fakeProfiles{profiles: []model.Profile{lapsed, active, neverVisited}}
	evaluator := NewEvaluator(profiles, checkIns, clock, 3, 30)

	auto := model.Automation{Type: model.AutomationWinBack, Name: "We Miss You"}
	candidates, err := evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != lapsed.ID {
		t.Fatalf("expected only the lapsed visitor, got %+v", candidates)
	}
}

func TestWinBackInactivityOverride(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)}

	member := newMember("member@example.com", clock.now.AddDate(-1, 0, 0))
	checkIns := &fakeCheckIns{byUser: map[uuid.UUID][]time.Time{
		member.ID: {clock.now.AddDate(0, 0, -10)},
	}}
	profiles := &fakeProfiles{profiles: []model.Profile{member}}
	evaluator := NewEvaluator(profiles, checkIns, clock, 3, 30)

	auto := model.Automation{Type: model.AutomationWinBack, Name: "We Miss You"}

	// Default window (30 days): a visit 10 days ago keeps the member active.
	candidates, err := evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates inside default window, got %d", len(candidates))
	}

	// A 7-day override makes the same member lapsed.
	auto.TriggerSettings.DaysInactive = 7
	candidates, err = evaluator.Candidates(context.Background(), &auto, nil)
	if err != nil {
		t.Fatalf("candidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected member lapsed under override, got %d", len(candidates))
	}
}

func TestUnknownAutomationTypeRejected(t *testing.T) {
	clock := &fixedClock{now: time.Now()}
	evaluator := NewEvaluator(&fakeProfiles{}, &fakeCheckIns{}, clock, 3, 30)

	auto := model.Automation{Type: "mystery"}
	if _, err := evaluator.Candidates(context.Background(), &auto, nil); err == nil {
		t.Fatalf("expected error for unknown automation type")
	}
}
