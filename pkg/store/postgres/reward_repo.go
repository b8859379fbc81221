package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
)

type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Reward, error) {
	var reward model.Reward
	err := r.db.WithContext(ctx).First(&reward, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *RewardRepository) CreateRedemption(ctx context.Context, redemption *model.Redemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.EmailTemplate, error) {
	var template model.EmailTemplate
	err := r.db.WithContext(ctx).First(&template, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}
