package push

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/config"
	"github.com/perkflow/perkflow/pkg/model"
)

type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PushSubscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Sender delivers web-push notifications to every device a user registered.
// It is strictly best-effort: errors are logged and swallowed, and gone
// subscriptions are pruned.
type Sender struct {
	subscriptions SubscriptionStore
	cfg           config.PushConfig
	logger        *zap.Logger
}

func NewSender(subscriptions SubscriptionStore, cfg config.PushConfig, logger *zap.Logger) *Sender {
	return &Sender{subscriptions: subscriptions, cfg: cfg, logger: logger}
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

func (s *Sender) Send(ctx context.Context, userID uuid.UUID, title, body, url string) {
	if s.cfg.VAPIDPrivateKey == "" {
		return
	}

	subscriptions, err := s.subscriptions.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load push subscriptions",
			zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	message, err := json.Marshal(payload{Title: title, Body: body, URL: url, Icon: "/icon.png"})
	if err != nil {
		s.logger.Warn("failed to marshal push payload", zap.Error(err))
		return
	}

	for _, sub := range subscriptions {
		s.sendOne(ctx, sub, message)
	}
}

func (s *Sender) sendOne(ctx context.Context, sub model.PushSubscription, message []byte) {
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.cfg.VAPIDSubject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		s.logger.Warn("push delivery failed",
			zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		// Subscription expired or revoked; drop it.
		if err := s.subscriptions.Delete(ctx, sub.ID); err != nil {
			s.logger.Warn("failed to prune dead push subscription",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
		}
	}
}

// NopSender satisfies campaign.PushSender when push is not configured.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, userID uuid.UUID, title, body, url string) {}
