package campaign

import (
	"context"

	"github.com/google/uuid"

	"github.com/perkflow/perkflow/pkg/model"
)

// EmailSender delivers one marketing email. Implementations must return an
// error for provider failures so callers can compensate and retry.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// PushSender is best-effort: implementations log and swallow delivery
// failures and never fail the caller.
type PushSender interface {
	Send(ctx context.Context, userID uuid.UUID, title, body, url string)
}

// Alerter notifies operators about failures that need human attention
// (missing rewards, provider outages). Best-effort.
type Alerter interface {
	Alert(ctx context.Context, subject, detail string)
}

// EventRecorder appends a campaign event to the outbox. Recording failures
// must not fail the campaign action itself.
type EventRecorder interface {
	Record(ctx context.Context, eventType string, payload model.JSONB) error
}
