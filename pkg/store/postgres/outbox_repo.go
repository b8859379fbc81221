package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Record implements campaign.EventRecorder.
func (r *OutboxRepository) Record(ctx context.Context, eventType string, payload model.JSONB) error {
	event := model.CampaignEvent{
		EventID:   uuid.New(),
		EventType: eventType,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
	}
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]model.CampaignEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.CampaignEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	updates := map[string]interface{}{
		"status":       model.OutboxStatusPublished,
		"published_at": publishedAt,
	}
	return r.db.WithContext(ctx).
		Model(&model.CampaignEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	updates := map[string]interface{}{
		"status": model.OutboxStatusFailed,
	}
	return r.db.WithContext(ctx).
		Model(&model.CampaignEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}
