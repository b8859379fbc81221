package model

import (
	"time"

	"github.com/google/uuid"
)

type EmailTemplate struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string    `gorm:"not null"`
	Subject     string    `gorm:"not null"`
	ContentHTML string    `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EmailTemplate) TableName() string {
	return "email_templates"
}
