package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
	"github.com/perkflow/perkflow/pkg/store/postgres"
)

// WorkflowHandler serves workflow definitions and their enrollments.
type WorkflowHandler struct {
	workflows   *postgres.WorkflowRepository
	enrollments *postgres.EnrollmentRepository
	logger      *zap.Logger
}

func NewWorkflowHandler(workflows *postgres.WorkflowRepository, enrollments *postgres.EnrollmentRepository, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, enrollments: enrollments, logger: logger}
}

func (h *WorkflowHandler) List(c *gin.Context) {
	workflows, err := h.workflows.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list workflows", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list workflows"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

func (h *WorkflowHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	workflow, err := h.workflows.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		h.logger.Error("failed to get workflow", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get workflow"})
		return
	}
	c.JSON(http.StatusOK, workflow)
}

type workflowRequest struct {
	Name    string         `json:"name" binding:"required"`
	Trigger string         `json:"trigger"`
	Active  *bool          `json:"active"`
	Steps   model.StepList `json:"steps" binding:"required"`
}

func (h *WorkflowHandler) Create(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, step := range req.Steps {
		switch step.Type {
		case model.StepDelay, model.StepEmail, model.StepReward:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown step type"})
			return
		}
	}

	workflow := &model.WorkflowDefinition{
		Name:    req.Name,
		Trigger: req.Trigger,
		Active:  req.Active == nil || *req.Active,
		Steps:   req.Steps,
	}
	if err := h.workflows.Create(c.Request.Context(), workflow); err != nil {
		h.logger.Error("failed to create workflow", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create workflow"})
		return
	}
	c.JSON(http.StatusCreated, workflow)
}

func (h *WorkflowHandler) ListEnrollments(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	enrollments, total, err := h.enrollments.ListByWorkflow(c.Request.Context(), workflowID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list enrollments",
			zap.String("workflow_id", workflowID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list enrollments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enrollments": enrollments,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}
