package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type scheduleRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	FindActive(ctx context.Context, exec sqlx.ExtContext, institutionID, academicPeriodID string) (*models.Schedule, error)
	UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
}

type sessionReader interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error)
}

type conflictReader interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.ConflictFilter) ([]models.Conflict, error)
}

type teachingLoadReader interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.TeachingLoadFilter) ([]models.TeachingLoad, error)
}

// ScheduleServiceDeps groups the collaborators of ScheduleService.
type ScheduleServiceDeps struct {
	Schedules scheduleRepository
	Sessions  sessionReader
	Conflicts conflictReader
	Loads     teachingLoadReader
	Tx        txProvider
	Engine    *Engine
	Locks     *ScheduleLocks
	Cache     *CacheService
	Events    *EventService
	Audit     auditLogger
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// ScheduleService manages timetables and their approval lifecycle.
type ScheduleService struct {
	schedules scheduleRepository
	sessions  sessionReader
	conflicts conflictReader
	loads     teachingLoadReader
	tx        txProvider
	engine    *Engine
	locks     *ScheduleLocks
	cache     *CacheService
	events    *EventService
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs the service.
func NewScheduleService(deps ScheduleServiceDeps) *ScheduleService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Engine == nil {
		deps.Engine = DefaultEngine()
	}
	if deps.Locks == nil {
		deps.Locks = NewScheduleLocks()
	}
	return &ScheduleService{
		schedules: deps.Schedules,
		sessions:  deps.Sessions,
		conflicts: deps.Conflicts,
		loads:     deps.Loads,
		tx:        deps.Tx,
		engine:    deps.Engine,
		locks:     deps.Locks,
		cache:     deps.Cache,
		events:    deps.Events,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

// Create opens a draft timetable.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleRequest, actor string) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	schedule := &models.Schedule{
		InstitutionID:    strings.TrimSpace(req.InstitutionID),
		AcademicPeriodID: strings.TrimSpace(req.AcademicPeriodID),
		Name:             strings.TrimSpace(req.Name),
		Status:           models.ScheduleStatusDraft,
		CreatedBy:        optionalString(actor),
	}
	if err := s.schedules.Create(ctx, nil, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScheduleCreate, "schedule", schedule.ID, nil, schedule)
	return schedule, nil
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule filter")
	}
	filter := models.ScheduleFilter{
		InstitutionID:    query.InstitutionID,
		AcademicPeriodID: query.AcademicPeriodID,
		Status:           models.ScheduleStatus(query.Status),
		Page:             query.Page,
		PageSize:         query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get loads one schedule.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// Summary aggregates sessions, conflicts and coverage. Results are cached until the schedule changes.
func (s *ScheduleService) Summary(ctx context.Context, id string) (*scheduler.Summary, error) {
	key := summaryCacheKey(id)
	var cached scheduler.Summary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.List(ctx, nil, models.SessionFilter{ScheduleID: id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	conflicts, err := s.conflicts.List(ctx, nil, models.ConflictFilter{ScheduleID: id})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicts")
	}
	var loads []models.TeachingLoad
	if s.loads != nil {
		loads, err = s.loads.List(ctx, nil, models.TeachingLoadFilter{
			InstitutionID:    schedule.InstitutionID,
			AcademicPeriodID: schedule.AcademicPeriodID,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching loads")
		}
	}

	summary := scheduler.Summarize(id, sessions, conflicts, loads)
	_ = s.cache.Set(ctx, key, summary, 0)
	return &summary, nil
}

// Submit sends a draft for review. Open blocking conflicts prevent it.
func (s *ScheduleService) Submit(ctx context.Context, id, actor string) (*dto.TransitionResponse, error) {
	return s.transition(ctx, id, actor, func(tx *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error) {
		conflicts, err := s.conflicts.List(ctx, tx, models.ConflictFilter{ScheduleID: id, OpenOnly: true})
		if err != nil {
			return current, nil, err
		}
		next, err := s.engine.Lifecycle.Submit(current, actor, conflicts)
		return next, nil, err
	})
}

// Approve marks a schedule under review as approved.
func (s *ScheduleService) Approve(ctx context.Context, id, actor string) (*dto.TransitionResponse, error) {
	return s.transition(ctx, id, actor, func(_ *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error) {
		next, err := s.engine.Lifecycle.Approve(current, actor)
		return next, nil, err
	})
}

// Reject returns an approved schedule to draft.
func (s *ScheduleService) Reject(ctx context.Context, id, actor string) (*dto.TransitionResponse, error) {
	return s.transition(ctx, id, actor, func(_ *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error) {
		next, err := s.engine.Lifecycle.Reject(current)
		return next, nil, err
	})
}

// Activate publishes an approved schedule and archives the one it replaces.
func (s *ScheduleService) Activate(ctx context.Context, id, actor string) (*dto.TransitionResponse, error) {
	return s.transition(ctx, id, actor, func(tx *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error) {
		active, err := s.schedules.FindActive(ctx, tx, current.InstitutionID, current.AcademicPeriodID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return current, nil, err
		}
		next, archived, err := s.engine.Lifecycle.Activate(current, active)
		if err != nil {
			return current, nil, err
		}
		if archived != nil {
			if err := s.schedules.UpdateLifecycle(ctx, tx, archived); err != nil {
				return current, nil, err
			}
		}
		return next, archived, nil
	})
}

// Archive retires an active schedule.
func (s *ScheduleService) Archive(ctx context.Context, id, actor string) (*dto.TransitionResponse, error) {
	return s.transition(ctx, id, actor, func(_ *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error) {
		next, err := s.engine.Lifecycle.Archive(current)
		return next, nil, err
	})
}

type transitionFunc func(tx *sqlx.Tx, current models.Schedule) (models.Schedule, *models.Schedule, error)

func (s *ScheduleService) transition(ctx context.Context, id, actor string, apply transitionFunc) (resp *dto.TransitionResponse, err error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.schedules.FindByID(ctx, tx, id)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	next, archived, err := apply(tx, *current)
	if err != nil {
		return nil, mapEngineError(err, "failed to transition schedule")
	}
	if err = s.schedules.UpdateLifecycle(ctx, tx, &next); err != nil {
		return nil, mapEngineError(err, "failed to persist schedule")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transition")
	}

	s.afterTransition(ctx, *current, next, actor)
	if archived != nil {
		s.afterTransition(ctx, models.Schedule{ID: archived.ID, Status: models.ScheduleStatusActive}, *archived, actor)
	}
	return &dto.TransitionResponse{Schedule: next, Archived: archived}, nil
}

func (s *ScheduleService) afterTransition(ctx context.Context, before, after models.Schedule, actor string) {
	s.logger.Info("schedule transitioned",
		zap.String("schedule_id", after.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("actor", actor),
	)
	s.metrics.RecordTransition("schedule", string(after.Status))
	s.events.ScheduleTransitioned(after, before.Status, actor)
	_ = s.cache.Invalidate(ctx, summaryCacheKey(after.ID))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScheduleTransition, "schedule", after.ID,
		map[string]string{"status": string(before.Status)}, map[string]string{"status": string(after.Status)})
}
