package automation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/model"
)

const defaultCooldownDays = 90

type LedgerStore interface {
	Claim(ctx context.Context, automationID, userID uuid.UUID, windowKey string, executedAt time.Time, expireBefore *time.Time) (bool, error)
	Release(ctx context.Context, automationID, userID uuid.UUID, windowKey string) error
	ForceRelease(ctx context.Context, automationID, userID uuid.UUID) error
}

// Window keys partition the ledger per automation type: welcome fires once
// per lifetime, birthday once per calendar year, win-back once per rolling
// cooldown (expired rows are purged at claim time, so the unique index always
// guards the live window).
const (
	windowLifetime = "lifetime"
	windowRolling  = "rolling"
)

// Ledger claims and releases (automation, user, window) execution slots on
// top of the log store's conditional insert.
type Ledger struct {
	store        LedgerStore
	clock        campaign.Clock
	cooldownDays int
}

func NewLedger(store LedgerStore, clock campaign.Clock, cooldownDays int) *Ledger {
	if cooldownDays <= 0 {
		cooldownDays = defaultCooldownDays
	}
	return &Ledger{store: store, clock: clock, cooldownDays: cooldownDays}
}

func (l *Ledger) windowKey(auto *model.Automation, now time.Time) string {
	switch auto.Type {
	case model.AutomationBirthday:
		return now.Format("2006")
	case model.AutomationWinBack:
		return windowRolling
	default:
		return windowLifetime
	}
}

// Claim reserves the execution slot for this user in the automation's current
// window. With force set (manual re-trigger) any existing claim is dropped
// first so the claim always succeeds.
func (l *Ledger) Claim(ctx context.Context, auto *model.Automation, userID uuid.UUID, force bool) (bool, error) {
	now := l.clock.Now()

	if force {
		if err := l.store.ForceRelease(ctx, auto.ID, userID); err != nil {
			return false, err
		}
	}

	var expireBefore *time.Time
	if auto.Type == model.AutomationWinBack {
		cutoff := now.AddDate(0, 0, -l.cooldownDays)
		expireBefore = &cutoff
	}

	return l.store.Claim(ctx, auto.ID, userID, l.windowKey(auto, now), now, expireBefore)
}

// Release compensates a failed side effect by deleting the claim, re-opening
// the slot for the next invocation.
func (l *Ledger) Release(ctx context.Context, auto *model.Automation, userID uuid.UUID) error {
	return l.store.Release(ctx, auto.ID, userID, l.windowKey(auto, l.clock.Now()))
}
