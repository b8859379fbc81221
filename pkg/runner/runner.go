package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/automation"
	"github.com/perkflow/perkflow/pkg/workflow"
)

// Runner drives both campaign engines on a fixed interval for deployments
// without an external cron. Each firing is one complete, stateless pass, the
// same entry points the cron endpoints expose.
type Runner struct {
	automations *automation.Engine
	workflows   *workflow.Engine
	logger      *zap.Logger
	interval    time.Duration
}

func New(automations *automation.Engine, workflows *workflow.Engine, logger *zap.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		automations: automations,
		workflows:   workflows,
		logger:      logger,
		interval:    interval,
	}
}

func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	runResult, err := r.automations.Run(ctx, nil)
	if err != nil {
		r.logger.Error("trigger automation pass failed", zap.Error(err))
	} else {
		sent := 0
		for _, result := range runResult.Results {
			sent += result.SentCount
		}
		r.logger.Info("trigger automation pass finished",
			zap.Int("automations", len(runResult.Results)),
			zap.Int("sent", sent))
	}

	tickResult, err := r.workflows.Tick(ctx)
	if err != nil {
		r.logger.Error("workflow tick failed", zap.Error(err))
		return
	}
	r.logger.Info("workflow tick finished",
		zap.Int("processed", tickResult.ProcessedCount))
}
