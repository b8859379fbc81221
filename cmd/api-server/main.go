package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/apiserver"
	"github.com/perkflow/perkflow/pkg/automation"
	"github.com/perkflow/perkflow/pkg/campaign"
	"github.com/perkflow/perkflow/pkg/config"
	"github.com/perkflow/perkflow/pkg/mailer"
	"github.com/perkflow/perkflow/pkg/push"
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

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	automationEngine, workflowEngine := buildEngines(db, cfg, logger)
	server := apiserver.NewServer(db, automationEngine, workflowEngine, cfg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}

func buildEngines(db *postgres.Store, cfg *config.Config, logger *zap.Logger) (*automation.Engine, *workflow.Engine) {
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

	return automationEngine, workflowEngine
}
