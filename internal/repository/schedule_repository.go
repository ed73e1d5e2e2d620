package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable/internal/models"
)

const scheduleColumns = `id, institution_id, academic_period_id, name, status, created_by, submitted_by, submitted_at,
approved_by, approved_at, activated_at, archived_at, meta, created_at, updated_at`

// ScheduleRepository provides persistence for weekly timetables.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// BeginTxx opens a transaction shared by the repositories of one request.
func (r *ScheduleRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

// Create inserts a new draft schedule.
func (r *ScheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusDraft
	}
	if len(schedule.Meta) == 0 {
		schedule.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	const query = `
INSERT INTO schedules (id, institution_id, academic_period_id, name, status, created_by, meta, created_at, updated_at)
VALUES (:id, :institution_id, :academic_period_id, :name, :status, :created_by, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	base := "FROM schedules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.InstitutionID != "" {
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.AcademicPeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("academic_period_id = $%d", len(args)+1))
		args = append(args, filter.AcademicPeriodID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", scheduleColumns, base, size, offset)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return schedules, total, nil
}

// FindByID loads a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE id = $1", scheduleColumns)
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, r.exec(exec), &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindActive returns the active schedule for an institution and academic period.
func (r *ScheduleRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, institutionID, academicPeriodID string) (*models.Schedule, error) {
	query := fmt.Sprintf("SELECT %s FROM schedules WHERE institution_id = $1 AND academic_period_id = $2 AND status = $3", scheduleColumns)
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, r.exec(exec), &schedule, query, institutionID, academicPeriodID, models.ScheduleStatusActive); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// UpdateLifecycle persists status and lifecycle stamps.
func (r *ScheduleRepository) UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	if len(schedule.Meta) == 0 {
		schedule.Meta = types.JSONText(`{}`)
	}
	const query = `
UPDATE schedules SET status = :status, submitted_by = :submitted_by, submitted_at = :submitted_at,
approved_by = :approved_by, approved_at = :approved_at, activated_at = :activated_at,
archived_at = :archived_at, meta = :meta, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule lifecycle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule lifecycle rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
