package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// SettingsRepository stores one generation settings row per institution.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Get loads the settings of an institution. Missing rows surface as sql.ErrNoRows.
func (r *SettingsRepository) Get(ctx context.Context, exec sqlx.ExtContext, institutionID string) (*models.GenerationSettings, error) {
	const query = `SELECT institution_id, working_days, daily_periods, period_duration_minutes, break_periods, lunch_break_period,
break_duration_minutes, lunch_duration_minutes, first_period_start, preferences, policy, updated_at
FROM generation_settings WHERE institution_id = $1`
	var settings models.GenerationSettings
	if err := sqlx.GetContext(ctx, r.exec(exec), &settings, query, institutionID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes the settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, settings *models.GenerationSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `
INSERT INTO generation_settings (institution_id, working_days, daily_periods, period_duration_minutes, break_periods,
lunch_break_period, break_duration_minutes, lunch_duration_minutes, first_period_start, preferences, policy, updated_at)
VALUES (:institution_id, :working_days, :daily_periods, :period_duration_minutes, :break_periods,
:lunch_break_period, :break_duration_minutes, :lunch_duration_minutes, :first_period_start, :preferences, :policy, :updated_at)
ON CONFLICT (institution_id) DO UPDATE
SET working_days = EXCLUDED.working_days,
    daily_periods = EXCLUDED.daily_periods,
    period_duration_minutes = EXCLUDED.period_duration_minutes,
    break_periods = EXCLUDED.break_periods,
    lunch_break_period = EXCLUDED.lunch_break_period,
    break_duration_minutes = EXCLUDED.break_duration_minutes,
    lunch_duration_minutes = EXCLUDED.lunch_duration_minutes,
    first_period_start = EXCLUDED.first_period_start,
    preferences = EXCLUDED.preferences,
    policy = EXCLUDED.policy,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, settings); err != nil {
		return fmt.Errorf("upsert generation settings: %w", err)
	}
	return nil
}
