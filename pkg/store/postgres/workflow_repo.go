package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/perkflow/perkflow/pkg/model"
)

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) List(ctx context.Context) ([]model.WorkflowDefinition, error) {
	var workflows []model.WorkflowDefinition
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&workflows).Error
	return workflows, err
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WorkflowDefinition, error) {
	var workflow model.WorkflowDefinition
	err := r.db.WithContext(ctx).First(&workflow, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *WorkflowRepository) Create(ctx context.Context, workflow *model.WorkflowDefinition) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

type EnrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListDue returns active enrollments whose wake time has passed, with their
// workflow definitions preloaded.
func (r *EnrollmentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.WorkflowEnrollment, error) {
	var enrollments []model.WorkflowEnrollment
	query := r.db.WithContext(ctx).
		Preload("Workflow").
		Where("status = ?", model.EnrollmentActive).
		Where("next_execution_at <= ?", now).
		Order("next_execution_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]model.WorkflowEnrollment, int64, error) {
	var enrollments []model.WorkflowEnrollment
	var total int64

	query := r.db.WithContext(ctx).
		Model(&model.WorkflowEnrollment{}).
		Where("workflow_id = ?", workflowID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&enrollments).Error
	return enrollments, total, err
}

// AdvanceStep moves the enrollment pointer with a compare-and-swap on the
// step index it was read at. A false return means another invocation advanced
// it first; the caller treats that as a no-op.
func (r *EnrollmentRepository) AdvanceStep(ctx context.Context, id uuid.UUID, fromIndex, toIndex int, nextExecutionAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.WorkflowEnrollment{}).
		Where("id = ? AND current_step_index = ? AND status = ?", id, fromIndex, model.EnrollmentActive).
		Updates(map[string]interface{}{
			"current_step_index": toIndex,
			"next_execution_at":  nextExecutionAt,
			"updated_at":         time.Now().UTC(),
		})
	return result.RowsAffected > 0, result.Error
}

// Complete terminates the enrollment, clearing its wake time. Same CAS guard
// as AdvanceStep.
func (r *EnrollmentRepository) Complete(ctx context.Context, id uuid.UUID, fromIndex int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.WorkflowEnrollment{}).
		Where("id = ? AND current_step_index = ? AND status = ?", id, fromIndex, model.EnrollmentActive).
		Updates(map[string]interface{}{
			"status":            model.EnrollmentCompleted,
			"next_execution_at": nil,
			"updated_at":        time.Now().UTC(),
		})
	return result.RowsAffected > 0, result.Error
}

// MarkFailed parks the enrollment after a permanent step failure. The row is
// kept for the admin screens; the engine never deletes enrollments.
func (r *EnrollmentRepository) MarkFailed(ctx context.Context, id uuid.UUID, fromIndex int, reason string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.WorkflowEnrollment{}).
		Where("id = ? AND current_step_index = ? AND status = ?", id, fromIndex, model.EnrollmentActive).
		Updates(map[string]interface{}{
			"status":            model.EnrollmentFailed,
			"next_execution_at": nil,
			"context":           gorm.Expr("context || ?::jsonb", `{"error": `+jsonString(reason)+`}`),
			"updated_at":        time.Now().UTC(),
		})
	return result.RowsAffected > 0, result.Error
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
