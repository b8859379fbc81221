package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/metrics"
	"github.com/perkflow/perkflow/pkg/model"
)

type AutomationSource interface {
	ListActive(ctx context.Context) ([]model.Automation, error)
}

type AutomationResult struct {
	AutomationName string `json:"automationName"`
	SentCount      int    `json:"sentCount"`
}

// RunResult summarizes one trigger-automation pass: per-automation sent
// counts plus a chronological human-readable decision log.
type RunResult struct {
	Results []AutomationResult `json:"results"`
	Log     []string           `json:"log"`
}

// Engine orchestrates evaluator, ledger and executor across all active
// automations. Each invocation is a complete, self-contained pass; all state
// lives in the store, so redundant invocations are safe.
type Engine struct {
	automations AutomationSource
	evaluator   *Evaluator
	ledger      *Ledger
	executor    *Executor
	events      campaign.EventRecorder
	clock       campaign.Clock
	logger      *zap.Logger

	itemTimeout time.Duration
}

func NewEngine(automations AutomationSource, evaluator *Evaluator, ledger *Ledger, executor *Executor, events campaign.EventRecorder, clock campaign.Clock, itemTimeout time.Duration, logger *zap.Logger) *Engine {
	if itemTimeout <= 0 {
		itemTimeout = 15 * time.Second
	}
	return &Engine{
		automations: automations,
		evaluator:   evaluator,
		ledger:      ledger,
		executor:    executor,
		events:      events,
		clock:       clock,
		logger:      logger,
		itemTimeout: itemTimeout,
	}
}

// Run executes one pass over all active automations. specificUserID restricts
// evaluation to one member and forces re-execution even when a claim exists;
// it is the only path allowed to bypass the ledger.
func (e *Engine) Run(ctx context.Context, specificUserID *uuid.UUID) (*RunResult, error) {
	start := e.clock.Now()
	defer func() {
		metrics.AutomationRunDuration.Observe(time.Since(start).Seconds())
	}()

	automations, err := e.automations.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}

	result := &RunResult{Results: []AutomationResult{}, Log: []string{}}
	if len(automations) == 0 {
		result.Log = append(result.Log, "no active automations")
		return result, nil
	}

	force := specificUserID != nil

	for i := range automations {
		auto := &automations[i]
		sent := e.runAutomation(ctx, auto, specificUserID, force, result)
		result.Results = append(result.Results, AutomationResult{
			AutomationName: auto.Name,
			SentCount:      sent,
		})
	}

	return result, nil
}

// runAutomation never returns an error: every per-candidate failure is
// recorded in the run log and the pass moves on.
func (e *Engine) runAutomation(ctx context.Context, auto *model.Automation, specificUserID *uuid.UUID, force bool, result *RunResult) int {
	typeLabel := string(auto.Type)

	candidates, err := e.evaluator.Candidates(ctx, auto, specificUserID)
	if err != nil {
		result.Log = append(result.Log, fmt.Sprintf("[%s] candidate evaluation failed: %v", auto.Name, err))
		e.logger.Error("candidate evaluation failed",
			zap.String("automation", auto.Name),
			zap.Error(err))
		metrics.AutomationFailures.WithLabelValues(typeLabel, "evaluation").Inc()
		return 0
	}

	result.Log = append(result.Log, fmt.Sprintf("[%s] %d candidate(s)", auto.Name, len(candidates)))
	metrics.AutomationCandidates.WithLabelValues(typeLabel).Add(float64(len(candidates)))

	sent := 0
	for i := range candidates {
		user := &candidates[i]

		claimed, err := e.ledger.Claim(ctx, auto, user.ID, force)
		if err != nil {
			// No claim, no side effect. The user is retried next run.
			result.Log = append(result.Log, fmt.Sprintf("[%s] user %s: claim failed: %v", auto.Name, user.ID, err))
			e.logger.Error("ledger claim failed",
				zap.String("automation", auto.Name),
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
			metrics.AutomationFailures.WithLabelValues(typeLabel, "repository").Inc()
			continue
		}
		if !claimed {
			result.Log = append(result.Log, fmt.Sprintf("[%s] user %s: already executed in window, skipping", auto.Name, user.ID))
			metrics.AutomationSkipped.WithLabelValues(typeLabel).Inc()
			continue
		}

		result.Log = append(result.Log, fmt.Sprintf("[%s] user %s: claim taken", auto.Name, user.ID))

		itemCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
		err = e.executor.Execute(itemCtx, auto, user)
		cancel()

		if err != nil {
			class := "transient"
			if campaign.IsPermanent(err) {
				class = "permanent"
			}
			result.Log = append(result.Log, fmt.Sprintf("[%s] user %s: failed (%s): %v", auto.Name, user.ID, class, err))
			e.logger.Warn("automation execution failed",
				zap.String("automation", auto.Name),
				zap.String("user_id", user.ID.String()),
				zap.String("class", class),
				zap.Error(err))
			metrics.AutomationFailures.WithLabelValues(typeLabel, class).Inc()
			continue
		}

		sent++
		result.Log = append(result.Log, fmt.Sprintf("[%s] user %s: sent", auto.Name, user.ID))
		metrics.AutomationSent.WithLabelValues(typeLabel).Inc()
		e.recordEvent(ctx, auto, user.ID)
	}

	return sent
}

func (e *Engine) recordEvent(ctx context.Context, auto *model.Automation, userID uuid.UUID) {
	if e.events == nil {
		return
	}
	payload := model.JSONB{
		"automation_id":   auto.ID.String(),
		"automation_type": string(auto.Type),
		"user_id":         userID.String(),
	}
	if err := e.events.Record(ctx, "automation_executed", payload); err != nil {
		e.logger.Warn("failed to record automation event", zap.Error(err))
	}
}
