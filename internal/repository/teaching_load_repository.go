package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

const teachingLoadColumns = `id, institution_id, academic_period_id, teacher_id, subject_id, class_id, room_id, weekly_hours,
priority_level, preferred_consecutive_hours, is_core_subject, ideal_distribution, unavailable_periods, created_at, updated_at`

// TeachingLoadRepository manages the weekly-hour catalog.
type TeachingLoadRepository struct {
	db *sqlx.DB
}

// NewTeachingLoadRepository constructs the repository.
func NewTeachingLoadRepository(db *sqlx.DB) *TeachingLoadRepository {
	return &TeachingLoadRepository{db: db}
}

func (r *TeachingLoadRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns loads matching the filter.
func (r *TeachingLoadRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.TeachingLoadFilter) ([]models.TeachingLoad, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.AcademicPeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_period_id = $%d", len(args)+1))
		args = append(args, filter.AcademicPeriodID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}

	query := fmt.Sprintf("SELECT %s FROM teaching_loads WHERE %s ORDER BY id ASC", teachingLoadColumns, strings.Join(conditions, " AND "))
	var loads []models.TeachingLoad
	if err := sqlx.SelectContext(ctx, r.exec(exec), &loads, query, args...); err != nil {
		return nil, fmt.Errorf("list teaching loads: %w", err)
	}
	return loads, nil
}

// Upsert inserts a load or updates the one sharing its teacher/subject/class tuple.
func (r *TeachingLoadRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, load *models.TeachingLoad) error {
	if load.ID == "" {
		load.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if load.CreatedAt.IsZero() {
		load.CreatedAt = now
	}
	load.UpdatedAt = now

	const query = `
INSERT INTO teaching_loads (id, institution_id, academic_period_id, teacher_id, subject_id, class_id, room_id, weekly_hours,
priority_level, preferred_consecutive_hours, is_core_subject, ideal_distribution, unavailable_periods, created_at, updated_at)
VALUES (:id, :institution_id, :academic_period_id, :teacher_id, :subject_id, :class_id, :room_id, :weekly_hours,
:priority_level, :preferred_consecutive_hours, :is_core_subject, :ideal_distribution, :unavailable_periods, :created_at, :updated_at)
ON CONFLICT (institution_id, academic_period_id, teacher_id, subject_id, class_id) DO UPDATE
SET room_id = EXCLUDED.room_id,
    weekly_hours = EXCLUDED.weekly_hours,
    priority_level = EXCLUDED.priority_level,
    preferred_consecutive_hours = EXCLUDED.preferred_consecutive_hours,
    is_core_subject = EXCLUDED.is_core_subject,
    ideal_distribution = EXCLUDED.ideal_distribution,
    unavailable_periods = EXCLUDED.unavailable_periods,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, load); err != nil {
		return fmt.Errorf("upsert teaching load: %w", err)
	}
	return nil
}

// Delete removes a load.
func (r *TeachingLoadRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teaching_loads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete teaching load: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("teaching load rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
