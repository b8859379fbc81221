package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/eventbus"
	"github.com/perkflow/perkflow/pkg/model"
)

type Repository interface {
	ListPending(ctx context.Context, limit int) ([]model.CampaignEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event eventbus.Event) error
}

// Relay drains the campaign-event outbox onto the bus. Events the engines
// wrote alongside their state changes become visible to subscribers without
// coupling the engines to redis.
type Relay struct {
	repo         Repository
	bus          Publisher
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
}

func NewRelay(repo Repository, bus Publisher, logger *zap.Logger, pollInterval time.Duration, batchSize int) *Relay {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		repo:         repo,
		bus:          bus,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay starting",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.processPending(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.processPending(ctx)
		}
	}
}

func (r *Relay) processPending(ctx context.Context) {
	events, err := r.repo.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("failed to list pending outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := r.publishEvent(ctx, event); err != nil {
			// Left pending; the next poll retries it.
			r.logger.Warn("failed to publish outbox event",
				zap.Error(err), zap.String("event_id", event.EventID.String()))
		}
	}
}

func (r *Relay) publishEvent(ctx context.Context, event model.CampaignEvent) error {
	busEvent, err := eventbus.NewEvent(event.EventType, event.Payload)
	if err != nil {
		// Unmarshalable payloads never publish; park them.
		if markErr := r.repo.MarkFailed(ctx, event.EventID); markErr != nil {
			r.logger.Warn("failed to mark event failed", zap.Error(markErr))
		}
		return err
	}

	if err := r.bus.Publish(ctx, channelFor(event.EventType), busEvent); err != nil {
		return err
	}

	if err := r.repo.MarkPublished(ctx, event.EventID, time.Now().UTC()); err != nil {
		r.logger.Warn("failed to mark event published",
			zap.Error(err), zap.String("event_id", event.EventID.String()))
		return err
	}

	return nil
}

func channelFor(eventType string) string {
	if strings.HasPrefix(eventType, "enrollment_") {
		return eventbus.ChannelWorkflow
	}
	return eventbus.ChannelAutomation
}
