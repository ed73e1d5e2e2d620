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

const sessionColumns = `id, schedule_id, teaching_load_id, teacher_id, subject_id, class_id, room_id, day, period,
start_time, end_time, status, source, substitute_teacher_id, substitute_reason, created_at, updated_at`

// SessionRepository stores the lessons of a schedule.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns sessions of a schedule ordered by slot.
func (r *SessionRepository) List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error) {
	conditions := []string{"schedule_id = $1"}
	args := []interface{}{filter.ScheduleID}

	if filter.Day > 0 {
		conditions = append(conditions, fmt.Sprintf("day = $%d", len(args)+1))
		args = append(args, filter.Day)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("(teacher_id = $%d OR substitute_teacher_id = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.RoomID != "" {
		conditions = append(conditions, fmt.Sprintf("room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}

	query := fmt.Sprintf("SELECT %s FROM sessions WHERE %s ORDER BY day ASC, period ASC, id ASC", sessionColumns, strings.Join(conditions, " AND "))
	var sessions []models.Session
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindByID loads a single session scoped to its schedule.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE schedule_id = $1 AND id = $2", sessionColumns)
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, scheduleID, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// InsertBatch inserts the provided sessions.
func (r *SessionRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO sessions (id, schedule_id, teaching_load_id, teacher_id, subject_id, class_id, room_id, day, period,
start_time, end_time, status, source, substitute_teacher_id, substitute_reason, created_at, updated_at)
VALUES (:id, :schedule_id, :teaching_load_id, :teacher_id, :subject_id, :class_id, :room_id, :day, :period,
:start_time, :end_time, :status, :source, :substitute_teacher_id, :substitute_reason, :created_at, :updated_at)`

	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		if session.Status == "" {
			session.Status = models.SessionStatusScheduled
		}
		if session.Source == "" {
			session.Source = models.SessionSourceManual
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		session.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	}
	return nil
}

// Update rewrites the mutable columns of a session.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE sessions SET teacher_id = :teacher_id, subject_id = :subject_id, class_id = :class_id, room_id = :room_id,
day = :day, period = :period, start_time = :start_time, end_time = :end_time, status = :status,
substitute_teacher_id = :substitute_teacher_id, substitute_reason = :substitute_reason, updated_at = :updated_at
WHERE schedule_id = :schedule_id AND id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) error {
	const query = `DELETE FROM sessions WHERE schedule_id = $1 AND id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, scheduleID, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteGenerated removes every generator-produced session of a schedule.
func (r *SessionRepository) DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, scheduleID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE schedule_id = $1 AND source = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, scheduleID, models.SessionSourceGenerated)
	if err != nil {
		return 0, fmt.Errorf("delete generated sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("generated sessions rows affected: %w", err)
	}
	return affected, nil
}
