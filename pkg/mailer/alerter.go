package mailer

import (
	"context"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/campaign"
)

// AlertMailer emails operators about conditions that need human attention.
// Alerts are best-effort: delivery failures are logged, never propagated.
type AlertMailer struct {
	sender campaign.EmailSender
	to     string
	logger *zap.Logger
}

func NewAlertMailer(sender campaign.EmailSender, to string, logger *zap.Logger) *AlertMailer {
	return &AlertMailer{sender: sender, to: to, logger: logger}
}

func (a *AlertMailer) Alert(ctx context.Context, subject, detail string) {
	a.logger.Error("operator alert", zap.String("subject", subject), zap.String("detail", detail))

	if a.to == "" {
		return
	}
	html := "<p>" + detail + "</p>"
	if err := a.sender.Send(ctx, a.to, "[perkflow alert] "+subject, html); err != nil {
		a.logger.Warn("failed to deliver operator alert", zap.Error(err))
	}
}
