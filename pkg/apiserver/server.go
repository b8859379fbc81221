package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/apiserver/handlers"
	"github.com/perkflow/perkflow/pkg/apiserver/middleware"
	"github.com/perkflow/perkflow/pkg/auth"
	"github.com/perkflow/perkflow/pkg/automation"
	"github.com/perkflow/perkflow/pkg/config"
	"github.com/perkflow/perkflow/pkg/store/postgres"
	"github.com/perkflow/perkflow/pkg/workflow"
)

type Server struct {
	router      *gin.Engine
	db          *postgres.Store
	automations *automation.Engine
	workflows   *workflow.Engine
	tokens      *auth.AdminTokenManager
	cfg         *config.Config
	logger      *zap.Logger
}

func NewServer(db *postgres.Store, automations *automation.Engine, workflows *workflow.Engine, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		db:          db,
		automations: automations,
		workflows:   workflows,
		tokens:      auth.NewAdminTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL),
		cfg:         cfg,
		logger:      logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(s.cfg.Server.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var gdb *gorm.DB
	if s.db != nil {
		gdb = s.db.DB()
	}

	campaignHandler := handlers.NewCampaignHandler(s.automations, s.workflows, s.logger)

	cron := r.Group("/api/cron")
	{
		cron.Use(middleware.CronAuth(s.cfg.Auth.CronSecret, s.tokens))
		cron.GET("/automations", campaignHandler.RunAutomations)
		cron.GET("/workflows", campaignHandler.RunWorkflowTick)
	}

	debug := r.Group("/api/debug")
	{
		debug.Use(middleware.CronAuth(s.cfg.Auth.CronSecret, s.tokens))
		debug.GET("/run-automation", campaignHandler.RunForUser)
	}

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.tokens))

		automationHandler := handlers.NewAutomationHandler(postgres.NewAutomationRepository(gdb), s.logger)
		api.GET("/automations", automationHandler.List)
		api.POST("/automations", automationHandler.Create)
		api.GET("/automations/:id", automationHandler.Get)
		api.PUT("/automations/:id", automationHandler.Update)
		api.POST("/automations/run", campaignHandler.RunAutomations)

		workflowHandler := handlers.NewWorkflowHandler(
			postgres.NewWorkflowRepository(gdb),
			postgres.NewEnrollmentRepository(gdb),
			s.logger,
		)
		api.GET("/workflows", workflowHandler.List)
		api.POST("/workflows", workflowHandler.Create)
		api.GET("/workflows/:id", workflowHandler.Get)
		api.GET("/workflows/:id/enrollments", workflowHandler.ListEnrollments)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
