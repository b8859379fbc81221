package automation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/model"
)

type RewardStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reward, error)
	CreateRedemption(ctx context.Context, redemption *model.Redemption) error
}

// Executor performs the automation's side effects for one claimed candidate.
// It runs only after a successful claim and compensates (releases the claim)
// whenever a side effect fails, so the next invocation retries the user.
type Executor struct {
	rewards RewardStore
	ledger  *Ledger
	email   campaign.EmailSender
	push    campaign.PushSender
	alerts  campaign.Alerter
	logger  *zap.Logger

	unsubscribeURL string
}

func NewExecutor(rewards RewardStore, ledger *Ledger, email campaign.EmailSender, push campaign.PushSender, alerts campaign.Alerter, unsubscribeURL string, logger *zap.Logger) *Executor {
	return &Executor{
		rewards:        rewards,
		ledger:         ledger,
		email:          email,
		push:           push,
		alerts:         alerts,
		logger:         logger,
		unsubscribeURL: unsubscribeURL,
	}
}

// Execute grants the automation's reward (if any) and sends its email. On
// full success the claim stays in place; on any failure it is released.
func (x *Executor) Execute(ctx context.Context, auto *model.Automation, user *model.Profile) error {
	if user.Email == nil || *user.Email == "" {
		// Candidate queries require an email, so this only happens when the
		// profile changed between evaluation and execution.
		x.compensate(ctx, auto, user.ID)
		return &campaign.ValidationError{Reason: "profile has no email"}
	}

	if auto.RewardID != nil {
		if err := x.grantReward(ctx, auto, user); err != nil {
			return err
		}
	}

	body := campaign.RenderTemplate(auto.EmailBody, user.FullName)
	body = campaign.AppendUnsubscribeFooter(body, x.unsubscribeURL)

	if err := x.email.Send(ctx, *user.Email, auto.EmailSubject, body); err != nil {
		x.compensate(ctx, auto, user.ID)
		x.alerts.Alert(ctx, "automation email failed",
			fmt.Sprintf("automation %q: sending to user %s failed: %v", auto.Name, user.ID, err))
		return &campaign.TransientError{Op: "email send", Err: err}
	}

	return nil
}

func (x *Executor) grantReward(ctx context.Context, auto *model.Automation, user *model.Profile) error {
	reward, err := x.rewards.GetByID(ctx, *auto.RewardID)
	if err != nil {
		x.compensate(ctx, auto, user.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			x.alerts.Alert(ctx, "automation reward missing",
				fmt.Sprintf("automation %q references reward %s which does not exist", auto.Name, *auto.RewardID))
			return &campaign.NotFoundError{Kind: "reward", ID: auto.RewardID.String()}
		}
		return &campaign.RepositoryError{Op: "reward lookup", Err: err}
	}

	redemption := &model.Redemption{
		ID:          uuid.New(),
		UserID:      user.ID,
		RewardID:    reward.ID,
		PointsSpent: 0,
		Status:      model.RedemptionApproved,
		VoucherCode: campaign.VoucherCode(),
	}
	if err := x.rewards.CreateRedemption(ctx, redemption); err != nil {
		x.compensate(ctx, auto, user.ID)
		return &campaign.RepositoryError{Op: "redemption insert", Err: err}
	}

	x.push.Send(ctx, user.ID, "You've received a reward", reward.Name, "/rewards")

	return nil
}

func (x *Executor) compensate(ctx context.Context, auto *model.Automation, userID uuid.UUID) {
	if err := x.ledger.Release(ctx, auto, userID); err != nil {
		// The claim row is now stale: the user will not be retried until an
		// operator clears it. Loud log so it gets noticed.
		x.logger.Error("failed to release automation claim",
			zap.String("automation_id", auto.ID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
