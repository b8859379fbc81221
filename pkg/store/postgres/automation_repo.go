package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/perkflow/perkflow/pkg/model"
)

type AutomationRepository struct {
	db *gorm.DB
}

func NewAutomationRepository(db *gorm.DB) *AutomationRepository {
	return &AutomationRepository{db: db}
}

func (r *AutomationRepository) ListActive(ctx context.Context) ([]model.Automation, error) {
	var automations []model.Automation
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC").
		Find(&automations).Error
	return automations, err
}

func (r *AutomationRepository) List(ctx context.Context) ([]model.Automation, error) {
	var automations []model.Automation
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&automations).Error
	return automations, err
}

func (r *AutomationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Automation, error) {
	var automation model.Automation
	err := r.db.WithContext(ctx).First(&automation, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &automation, nil
}

func (r *AutomationRepository) Create(ctx context.Context, automation *model.Automation) error {
	return r.db.WithContext(ctx).Create(automation).Error
}

func (r *AutomationRepository) Update(ctx context.Context, automation *model.Automation) error {
	return r.db.WithContext(ctx).Save(automation).Error
}

// LedgerRepository owns automation_logs, the idempotency ledger. The claim is
// a single conditional insert against the (automation_id, user_id, window_key)
// unique index, so it doubles as the concurrency boundary between overlapping
// scheduler invocations.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Claim reserves the (automation, user, window) slot. When expireBefore is
// set, rows whose executed_at predates it are purged first: those claims are
// outside the rolling window and no longer count as live.
// Returns false when another invocation already holds the slot.
func (r *LedgerRepository) Claim(ctx context.Context, automationID, userID uuid.UUID, windowKey string, executedAt time.Time, expireBefore *time.Time) (bool, error) {
	if expireBefore != nil {
		err := r.db.WithContext(ctx).
			Where("automation_id = ? AND user_id = ? AND window_key = ? AND executed_at < ?",
				automationID, userID, windowKey, *expireBefore).
			Delete(&model.AutomationLog{}).Error
		if err != nil {
			return false, err
		}
	}

	log := model.AutomationLog{
		ID:           uuid.New(),
		AutomationID: automationID,
		UserID:       userID,
		WindowKey:    windowKey,
		ExecutedAt:   executedAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "user_id"}, {Name: "window_key"}},
			DoNothing: true,
		}).
		Create(&log)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// Release deletes the claim as a compensating action after a failed side
// effect, so the next invocation retries the user.
func (r *LedgerRepository) Release(ctx context.Context, automationID, userID uuid.UUID, windowKey string) error {
	return r.db.WithContext(ctx).
		Where("automation_id = ? AND user_id = ? AND window_key = ?", automationID, userID, windowKey).
		Delete(&model.AutomationLog{}).Error
}

// ForceRelease drops every claim the user holds for the automation. Only the
// manual single-user re-trigger path uses it.
func (r *LedgerRepository) ForceRelease(ctx context.Context, automationID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("automation_id = ? AND user_id = ?", automationID, userID).
		Delete(&model.AutomationLog{}).Error
}
