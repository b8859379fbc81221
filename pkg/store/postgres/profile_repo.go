package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindCreatedSince returns profiles with an email address created at or after
// the cutoff. specificUserID narrows the result to one member.
func (r *ProfileRepository) FindCreatedSince(ctx context.Context, since time.Time, specificUserID *uuid.UUID) ([]model.Profile, error) {
	query := r.db.WithContext(ctx).
		Where("email IS NOT NULL").
		Where("created_at >= ?", since)
	if specificUserID != nil {
		query = query.Where("id = ?", *specificUserID)
	}

	var profiles []model.Profile
	err := query.Order("created_at ASC").Find(&profiles).Error
	return profiles, err
}

// FindConsented returns profiles with an email address that opted into
// marketing.
func (r *ProfileRepository) FindConsented(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error) {
	query := r.db.WithContext(ctx).
		Where("email IS NOT NULL").
		Where("marketing_consent = ?", true)
	if specificUserID != nil {
		query = query.Where("id = ?", *specificUserID)
	}

	var profiles []model.Profile
	err := query.Order("created_at ASC").Find(&profiles).Error
	return profiles, err
}

// FindBirthdayCandidates returns consented profiles that have a birthday on
// file. Month matching is done by the evaluator.
func (r *ProfileRepository) FindBirthdayCandidates(ctx context.Context, specificUserID *uuid.UUID) ([]model.Profile, error) {
	query := r.db.WithContext(ctx).
		Where("email IS NOT NULL").
		Where("marketing_consent = ?", true).
		Where("birthday IS NOT NULL")
	if specificUserID != nil {
		query = query.Where("id = ?", *specificUserID)
	}

	var profiles []model.Profile
	err := query.Order("created_at ASC").Find(&profiles).Error
	return profiles, err
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type CheckInRepository struct {
	db *gorm.DB
}

func NewCheckInRepository(db *gorm.DB) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// UserIDsSince returns the ids of members with at least one check-in at or
// after the cutoff.
func (r *CheckInRepository) UserIDsSince(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.CheckIn{}).
		Distinct("user_id").
		Where("created_at >= ?", cutoff).
		Pluck("user_id", &ids).Error
	return ids, err
}

// UserIDsWithVisits returns the ids of members with any check-in history.
func (r *CheckInRepository) UserIDsWithVisits(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.CheckIn{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}
