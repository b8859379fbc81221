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

// AutomationHandler is the admin CRUD surface over campaign automations.
type AutomationHandler struct {
	automations *postgres.AutomationRepository
	logger      *zap.Logger
}

func NewAutomationHandler(automations *postgres.AutomationRepository, logger *zap.Logger) *AutomationHandler {
	return &AutomationHandler{automations: automations, logger: logger}
}

type automationRequest struct {
	Name            string                `json:"name" binding:"required"`
	Type            model.AutomationType  `json:"type" binding:"required"`
	Active          *bool                 `json:"active"`
	TriggerSettings model.TriggerSettings `json:"trigger_settings"`
	RewardID        *uuid.UUID            `json:"reward_id"`
	EmailSubject    string                `json:"email_subject" binding:"required"`
	EmailBody       string                `json:"email_body"`
}

func validAutomationType(t model.AutomationType) bool {
	switch t {
	case model.AutomationWelcome, model.AutomationBirthday, model.AutomationWinBack:
		return true
	}
	return false
}

func (h *AutomationHandler) List(c *gin.Context) {
	automations, err := h.automations.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list automations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list automations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"automations": automations})
}

func (h *AutomationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid automation id"})
		return
	}

	automation, err := h.automations.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "automation not found"})
			return
		}
		h.logger.Error("failed to get automation", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get automation"})
		return
	}
	c.JSON(http.StatusOK, automation)
}

func (h *AutomationHandler) Create(c *gin.Context) {
	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validAutomationType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown automation type"})
		return
	}

	automation := &model.Automation{
		Name:            req.Name,
		Type:            req.Type,
		Active:          req.Active == nil || *req.Active,
		TriggerSettings: req.TriggerSettings,
		RewardID:        req.RewardID,
		EmailSubject:    req.EmailSubject,
		EmailBody:       req.EmailBody,
	}
	if err := h.automations.Create(c.Request.Context(), automation); err != nil {
		h.logger.Error("failed to create automation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create automation"})
		return
	}
	c.JSON(http.StatusCreated, automation)
}

func (h *AutomationHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid automation id"})
		return
	}

	var req automationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validAutomationType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown automation type"})
		return
	}

	automation, err := h.automations.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "automation not found"})
			return
		}
		h.logger.Error("failed to get automation", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get automation"})
		return
	}

	automation.Name = req.Name
	automation.Type = req.Type
	if req.Active != nil {
		automation.Active = *req.Active
	}
	automation.TriggerSettings = req.TriggerSettings
	automation.RewardID = req.RewardID
	automation.EmailSubject = req.EmailSubject
	automation.EmailBody = req.EmailBody

	if err := h.automations.Update(c.Request.Context(), automation); err != nil {
		h.logger.Error("failed to update automation", zap.String("id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update automation"})
		return
	}
	c.JSON(http.StatusOK, automation)
}
