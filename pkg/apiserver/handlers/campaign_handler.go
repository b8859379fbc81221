package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/automation"
	"github.com/perkflow/perkflow/pkg/workflow"
)

// CampaignHandler exposes the two engine entry points to the external
// scheduler plus the manual re-trigger used for debugging.
type CampaignHandler struct {
	automations *automation.Engine
	workflows   *workflow.Engine
	logger      *zap.Logger
}

func NewCampaignHandler(automations *automation.Engine, workflows *workflow.Engine, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{automations: automations, workflows: workflows, logger: logger}
}

func (h *CampaignHandler) RunAutomations(c *gin.Context) {
	result, err := h.automations.Run(c.Request.Context(), nil)
	if err != nil {
		h.logger.Error("automation run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "automation run failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": result.Results,
		"log":     result.Log,
	})
}

func (h *CampaignHandler) RunWorkflowTick(c *gin.Context) {
	result, err := h.workflows.Tick(c.Request.Context())
	if err != nil {
		h.logger.Error("workflow tick failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "workflow tick failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": result.ProcessedCount,
		"details":   result.Details,
	})
}

// RunForUser re-executes every active automation for one member, bypassing
// the idempotency ledger. Debug/manual use only.
func (h *CampaignHandler) RunForUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	result, err := h.automations.Run(c.Request.Context(), &userID)
	if err != nil {
		h.logger.Error("forced automation run failed",
			zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "automation run failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": result.Results,
		"log":     result.Log,
	})
}
