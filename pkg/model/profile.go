package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Profile is the member record. The engine only reads it; signup, consent and
// balance accrual are owned by the account service.
type Profile struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	Email            *string   `gorm:"index"`
	FullName         string
	Birthday         *time.Time
	MarketingConsent bool           `gorm:"default:false;index"`
	Tags             pq.StringArray `gorm:"type:text[]"`
	CreatedAt        time.Time      `gorm:"index"`
	UpdatedAt        time.Time
}

type CheckIn struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	StoreName string
	CreatedAt time.Time `gorm:"index"`
}

func (CheckIn) TableName() string {
	return "check_ins"
}
