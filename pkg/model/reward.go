package model

import (
	"time"

	"github.com/google/uuid"
)

type Reward struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string    `gorm:"not null"`
	Description string
	PointsCost  int  `gorm:"default:0"`
	Active      bool `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	RedemptionApproved = "approved"
	RedemptionPending  = "pending"
	RedemptionRedeemed = "redeemed"
)

// Redemption is an issued voucher. Campaign grants are zero-cost and
// auto-approved; point-purchased redemptions come through the member app.
type Redemption struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index"`
	RewardID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PointsSpent int       `gorm:"default:0"`
	Status      string    `gorm:"type:varchar(20);default:'pending'"`
	VoucherCode string    `gorm:"type:varchar(20);uniqueIndex"`
	CreatedAt   time.Time
}
