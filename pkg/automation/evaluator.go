package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/model"
)

const (
	defaultWelcomeLookbackDays = 3
	defaultInactiveDays        = 30
)

type ProfileSource interface {
	FindCreatedSince(ctx context.Context, since time.Time, specificUserID *uuid.UUID) ([]model.Profile, error)
	FindConsented(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error)
	FindBirthdayCandidates(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error)
}

type CheckInSource interface {
	UserIDsSince(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	UserIDsWithVisits(ctx context.Context) ([]uuid.UUID, error)
}

// Evaluator computes the candidate set of one automation for the current
// invocation. All selection is a pure function of repository state and the
// clock.
type Evaluator struct {
	profiles ProfileSource
	checkIns CheckInSource
	clock    campaign.Clock

	welcomeLookbackDays int
	inactiveDays        int
}

func NewEvaluator(profiles ProfileSource, checkIns CheckInSource, clock campaign.Clock, welcomeLookbackDays, inactiveDays int) *Evaluator {
	if welcomeLookbackDays <= 0 {
		welcomeLookbackDays = defaultWelcomeLookbackDays
	}
	if inactiveDays <= 0 {
		inactiveDays = defaultInactiveDays
	}
	return &Evaluator{
		profiles:            profiles,
		checkIns:            checkIns,
		clock:               clock,
		welcomeLookbackDays: welcomeLookbackDays,
		inactiveDays:        inactiveDays,
	}
}

// Candidates returns the members the automation should fire for right now,
// before any idempotency filtering. specificUserID narrows evaluation to one
// member for the manual re-trigger path.
func (e *Evaluator) Candidates(ctx context.Context, auto *model.Automation, specificUserID *uuid.UUID) ([]model.Profile, error) {
	switch auto.Type {
	case model.AutomationWelcome:
		return e.welcomeCandidates(ctx, auto, specificUserID)
	case model.AutomationBirthday:
		return e.birthdayCandidates(ctx, specificUserID)
	case model.AutomationWinBack:
		return e.winBackCandidates(ctx, auto, specificUserID)
	default:
		return nil, fmt.Errorf("unknown automation type %q", auto.Type)
	}
}

func (e *Evaluator) welcomeCandidates(ctx context.Context, auto *model.Automation, specificUserID *uuid.UUID) ([]model.Profile, error) {
	lookback := e.welcomeLookbackDays
	if auto.TriggerSettings.LookbackDays > 0 {
		lookback = auto.TriggerSettings.LookbackDays
	}
	cutoff := e.clock.Now().AddDate(0, 0, -lookback)
	return e.profiles.FindCreatedSince(ctx, cutoff, specificUserID)
}

func (e *Evaluator) birthdayCandidates(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error) {
	profiles, err := e.profiles.FindBirthdayCandidates(ctx, specificUserID)
	if err != nil {
		return nil, err
	}

	currentMonth := e.clock.Now().Month()
	candidates := make([]model.Profile, 0, len(profiles))
	for _, profile := range profiles {
		if profile.Birthday == nil {
			continue
		}
		// Month match only; the birth year is irrelevant.
		if profile.Birthday.Month() == currentMonth {
			candidates = append(candidates, profile)
		}
	}
	return candidates, nil
}

func (e *Evaluator) winBackCandidates(ctx context.Context, auto *model.Automation, specificUserID *uuid.UUID) ([]model.Profile, error) {
	days := auto.TriggerSettings.DaysInactive
	if days <= 0 {
		days = e.inactiveDays
	}
	cutoff := e.clock.Now().AddDate(0, 0, -days)

	activeIDs, err := e.checkIns.UserIDsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	active := make(map[uuid.UUID]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	visitedIDs, err := e.checkIns.UserIDsWithVisits(ctx)
	if err != nil {
		return nil, err
	}
	visited := make(map[uuid.UUID]struct{}, len(visitedIDs))
	for _, id := range visitedIDs {
		visited[id] = struct{}{}
	}

	profiles, err := e.profiles.FindConsented(ctx, specificUserID)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Profile, 0, len(profiles))
	for _, profile := range profiles {
		if _, everVisited := visited[profile.ID]; !everVisited {
			continue
		}
		if _, recentlyActive := active[profile.ID]; recentlyActive {
			continue
		}
		candidates = append(candidates, profile)
	}
	return candidates, nil
}
