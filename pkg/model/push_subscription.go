package model

import (
	"time"

	"github.com/google/uuid"
)

// PushSubscription is one browser/device web-push registration. A user may
// hold several; expired ones are pruned when the push service reports them
// gone.
type PushSubscription struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Endpoint  string    `gorm:"type:text;not null"`
	P256DH    string    `gorm:"column:p256dh;type:text;not null"`
	Auth      string    `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
