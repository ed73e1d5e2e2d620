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

const conflictColumns = `id, schedule_id, type, severity, session_ids, detection_method, status, blocks_approval,
auto_resolvable, description, suggested_solutions, details, stakeholders, fingerprint, impact_score, history,
resolved_by, resolved_at, resolution_notes, resolution_actions, detected_at, updated_at`

// ConflictRepository persists conflict records and their history.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs the repository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

func (r *ConflictRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns conflicts matching the filter, most severe impact first.
func (r *ConflictRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.ConflictFilter) ([]models.Conflict, error) {
	conditions := []string{"schedule_id = $1"}
	args := []interface{}{filter.ScheduleID}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)+1))
		args = append(args, filter.Severity)
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "status NOT IN ('resolved', 'ignored')")
	}
	if filter.BlockingOnly {
		conditions = append(conditions, "blocks_approval = TRUE")
	}

	query := fmt.Sprintf("SELECT %s FROM conflicts WHERE %s ORDER BY impact_score DESC, fingerprint ASC, detected_at ASC",
		conflictColumns, strings.Join(conditions, " AND "))
	var conflicts []models.Conflict
	if err := sqlx.SelectContext(ctx, r.exec(exec), &conflicts, query, args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return conflicts, nil
}

// FindByID loads a conflict.
func (r *ConflictRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Conflict, error) {
	query := fmt.Sprintf("SELECT %s FROM conflicts WHERE id = $1", conflictColumns)
	var conflict models.Conflict
	if err := sqlx.GetContext(ctx, r.exec(exec), &conflict, query, id); err != nil {
		return nil, err
	}
	return &conflict, nil
}

// Insert stores a new conflict record.
func (r *ConflictRepository) Insert(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error {
	if conflict.ID == "" {
		conflict.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = now
	}
	if conflict.UpdatedAt.IsZero() {
		conflict.UpdatedAt = now
	}

	const query = `
INSERT INTO conflicts (id, schedule_id, type, severity, session_ids, detection_method, status, blocks_approval,
auto_resolvable, description, suggested_solutions, details, stakeholders, fingerprint, impact_score, history,
resolved_by, resolved_at, resolution_notes, resolution_actions, detected_at, updated_at)
VALUES (:id, :schedule_id, :type, :severity, :session_ids, :detection_method, :status, :blocks_approval,
:auto_resolvable, :description, :suggested_solutions, :details, :stakeholders, :fingerprint, :impact_score, :history,
:resolved_by, :resolved_at, :resolution_notes, :resolution_actions, :detected_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, conflict); err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// UpdateState persists status, history and resolution fields.
func (r *ConflictRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error {
	const query = `
UPDATE conflicts SET status = :status, history = :history, resolved_by = :resolved_by, resolved_at = :resolved_at,
resolution_notes = :resolution_notes, resolution_actions = :resolution_actions, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, conflict)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conflict rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
