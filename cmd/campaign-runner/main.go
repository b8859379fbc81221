package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/automation"
	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/config"
	"github.com/perkflow/perkflow/pkg/mailer"
	"github.com/perkflow/perkflow/pkg/push"
	"github.com/perkflow/perkflow/pkg/runner"
	"github.com/perkflow/perkflow/pkg/store/postgres"
	"github.com/perkflow/perkflow/pkg/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	gdb := db.DB()

	profiles := postgres.NewProfileRepository(gdb)
	checkIns := postgres.NewCheckInRepository(gdb)
	rewards := postgres.NewRewardRepository(gdb)
	templates := postgres.NewTemplateRepository(gdb)
	enrollments := postgres.NewEnrollmentRepository(gdb)
	outboxRepo := postgres.NewOutboxRepository(gdb)

	clock := campaign.SystemClock()
	email := mailer.New(&cfg.Email, logger)
	alerts := mailer.NewAlertMailer(email, cfg.Email.AlertAddress, logger)
	pushSender := push.NewSender(postgres.NewPushSubscriptionRepository(gdb), cfg.Push, logger)

	evaluator := automation.NewEvaluator(profiles, checkIns, clock,
		cfg.Engine.WelcomeLookbackDays, cfg.Engine.DefaultInactiveDays)
	ledger := automation.NewLedger(postgres.NewLedgerRepository(gdb), clock, cfg.Engine.WinBackCooldownDays)
	executor := automation.NewExecutor(rewards, ledger, email, pushSender, alerts,
		cfg.Server.BaseURL+"/unsubscribe", logger)
	automationEngine := automation.NewEngine(postgres.NewAutomationRepository(gdb),
		evaluator, ledger, executor, outboxRepo, clock, cfg.Engine.ItemTimeout, logger)

	machine := workflow.NewStepMachine(enrollments, profiles, templates, rewards,
		email, pushSender, alerts, clock, logger)
	workflowEngine := workflow.NewEngine(machine, enrollments, outboxRepo, clock,
		cfg.Engine.TickBatchSize, cfg.Engine.ItemTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down runner...")
		cancel()
	}()

	logger.Info("Starting campaign runner", zap.Duration("interval", cfg.Engine.TickInterval))
	runner.New(automationEngine, workflowEngine, logger, cfg.Engine.TickInterval).Run(ctx)
}
