package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StepType string

const (
	StepDelay  StepType = "delay"
	StepEmail  StepType = "email"
	StepReward StepType = "reward"
)

type StepConfig struct {
	// DurationHours is the wait length of a delay step.
	DurationHours int `json:"duration,omitempty"`
	// TemplateID and SubjectOverride configure an email step.
	TemplateID      *uuid.UUID `json:"template_id,omitempty"`
	SubjectOverride string     `json:"subject_override,omitempty"`
	// RewardID configures a reward step.
	RewardID *uuid.UUID `json:"reward_id,omitempty"`
}

type Step struct {
	Type   StepType   `json:"type"`
	Config StepConfig `json:"config"`
}

// StepList stores the ordered steps of a workflow as a single JSON column.
// Definitions are immutable for the duration of a run.
type StepList []Step

func (s StepList) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(StepList{})
	}
	return json.Marshal(s)
}

func (s *StepList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StepList: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

func (StepList) GormDataType() string {
	return "jsonb"
}

type WorkflowDefinition struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name      string    `gorm:"not null"`
	Trigger   string    `gorm:"type:varchar(50)"`
	Active    bool      `gorm:"default:true"`
	Steps     StepList  `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// WorkflowEnrollment is one user's progress pointer through a workflow.
// Created by signup/segmentation events; mutated only by the step machine,
// one field-set per tick. Never deleted by the engine.
type WorkflowEnrollment struct {
	ID               uuid.UUID           `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID       uuid.UUID           `gorm:"type:uuid;not null;index"`
	Workflow         *WorkflowDefinition `gorm:"foreignKey:WorkflowID"`
	UserID           uuid.UUID           `gorm:"type:uuid;not null;index"`
	CurrentStepIndex int                 `gorm:"default:0"`
	NextExecutionAt  *time.Time          `gorm:"index"`
	Status           EnrollmentStatus    `gorm:"type:varchar(20);default:'active';index"`
	Context          JSONB               `gorm:"type:jsonb;default:'{}'"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (WorkflowEnrollment) TableName() string {
	return "workflow_enrollments"
}
