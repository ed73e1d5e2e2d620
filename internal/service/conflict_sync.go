package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type sessionStore interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) (*models.Session, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	Delete(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) error
	DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, scheduleID string) (int64, error)
}

type conflictStore interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.ConflictFilter) ([]models.Conflict, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Conflict, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error
	UpdateState(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error
}

type settingsStore interface {
	Get(ctx context.Context, exec sqlx.ExtContext, institutionID string) (*models.GenerationSettings, error)
}

// autoResolveLimit bounds the greedy remediation passes over one schedule.
const autoResolveLimit = 50

// reconcileConflicts merges a detection pass into the stored conflict records inside tx.
func reconcileConflicts(ctx context.Context, tx sqlx.ExtContext, store conflictStore, tracker *scheduler.Tracker, scheduleID string, detected []models.Conflict) (scheduler.ReconcileResult, error) {
	existing, err := store.List(ctx, tx, models.ConflictFilter{ScheduleID: scheduleID})
	if err != nil {
		return scheduler.ReconcileResult{}, err
	}
	result := tracker.Reconcile(scheduleID, existing, detected)
	for i := range result.Created {
		if err := store.Insert(ctx, tx, &result.Created[i]); err != nil {
			return scheduler.ReconcileResult{}, err
		}
	}
	for i := range result.Resolved {
		if err := store.UpdateState(ctx, tx, &result.Resolved[i]); err != nil {
			return scheduler.ReconcileResult{}, err
		}
	}
	return result, nil
}

// publishReconcile reports the created conflicts once the transaction holding them committed.
func publishReconcile(metrics *MetricsService, events *EventService, scheduleID string, result scheduler.ReconcileResult) {
	for _, c := range result.Created {
		metrics.RecordConflictDetected(string(c.Type), string(c.Severity))
	}
	events.ConflictsDetected(scheduleID, result)
}

func openConflicts(result scheduler.ReconcileResult) []models.Conflict {
	open := make([]models.Conflict, 0, len(result.Created)+len(result.Unchanged))
	open = append(open, result.Created...)
	open = append(open, result.Unchanged...)
	return open
}

// autoResolveSessions repeatedly applies the first verified automatic remedy
// until no auto-resolvable conflict yields to one. It returns the updated
// sessions, the ids of the moved sessions and the number of applied remedies.
func autoResolveSessions(detector *scheduler.Detector, resolver *scheduler.AutoResolver, sessions []models.Session, settings models.GenerationSettings) ([]models.Session, map[string]bool, int, error) {
	changed := make(map[string]bool)
	applied := 0
	for attempt := 0; attempt < autoResolveLimit; attempt++ {
		progressed := false
		for _, conflict := range detector.Detect(sessions, settings) {
			if !conflict.AutoResolvable {
				continue
			}
			outcome, err := resolver.Resolve(conflict, sessions, settings)
			if err != nil {
				if errors.Is(err, scheduler.ErrNotAutoResolvable) {
					continue
				}
				return nil, nil, 0, err
			}
			if !outcome.Applied {
				continue
			}
			sessions = outcome.Sessions
			for _, s := range outcome.Changed {
				changed[s.ID] = true
			}
			applied++
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	return sessions, changed, applied, nil
}

func loadSettings(ctx context.Context, store settingsStore, exec sqlx.ExtContext, institutionID string) (*models.GenerationSettings, error) {
	settings, err := store.Get(ctx, exec, institutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "generation settings are not configured for this institution")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation settings")
	}
	return settings, nil
}
