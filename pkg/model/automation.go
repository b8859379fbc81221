package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AutomationType string

const (
	AutomationWelcome  AutomationType = "welcome"
	AutomationBirthday AutomationType = "birthday"
	AutomationWinBack  AutomationType = "win_back"
)

// TriggerSettings holds the type-specific knobs of an automation. Only the
// fields relevant to the automation's type are consulted.
type TriggerSettings struct {
	// DaysInactive is the win-back inactivity window in days.
	DaysInactive int `json:"days_inactive,omitempty"`
	// LookbackDays overrides the welcome signup lookback window.
	LookbackDays int `json:"lookback_days,omitempty"`
}

func (s TriggerSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *TriggerSettings) Scan(value interface{}) error {
	if value == nil {
		*s = TriggerSettings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan TriggerSettings: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

func (TriggerSettings) GormDataType() string {
	return "jsonb"
}

// Automation is a standing campaign rule edited by administrators and
// read-only to the engine.
type Automation struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name            string          `gorm:"not null"`
	Type            AutomationType  `gorm:"type:varchar(20);not null;index"`
	Active          bool            `gorm:"default:true;index"`
	TriggerSettings TriggerSettings `gorm:"type:jsonb;default:'{}'"`
	RewardID        *uuid.UUID      `gorm:"type:uuid"`
	EmailSubject    string          `gorm:"not null"`
	EmailBody       string          `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AutomationLog is the idempotency ledger: one live row per
// (automation, user, window) is the claim that a side effect has been, or is
// about to be, performed. The composite unique index makes the claim a single
// conditional insert, so two overlapping runs cannot both win the same slot.
type AutomationLog struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AutomationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_automation_user_window"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_automation_user_window"`
	WindowKey    string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_automation_user_window"`
	ExecutedAt   time.Time `gorm:"not null;index"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}
