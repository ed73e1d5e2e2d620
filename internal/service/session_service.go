package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// SessionServiceDeps groups the collaborators of SessionService.
type SessionServiceDeps struct {
	Schedules scheduleRepository
	Sessions  sessionStore
	Conflicts conflictStore
	Settings  settingsStore
	Resources catalogReader
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

// SessionService edits individual lessons and keeps the conflict set current.
type SessionService struct {
	schedules scheduleRepository
	sessions  sessionStore
	conflicts conflictStore
	settings  settingsStore
	resources catalogReader
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

// NewSessionService constructs the service.
func NewSessionService(deps SessionServiceDeps) *SessionService {
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
	return &SessionService{
		schedules: deps.Schedules,
		sessions:  deps.Sessions,
		conflicts: deps.Conflicts,
		settings:  deps.Settings,
		resources: deps.Resources,
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

// List returns the sessions of a schedule ordered by slot.
func (s *SessionService) List(ctx context.Context, scheduleID string, query dto.SessionQuery) ([]models.Session, error) {
	filter := models.SessionFilter{
		ScheduleID: scheduleID,
		TeacherID:  query.TeacherID,
		ClassID:    query.ClassID,
		RoomID:     query.RoomID,
	}
	if query.Day != "" {
		day, err := parseDayParam(query.Day)
		if err != nil {
			return nil, err
		}
		filter.Day = day
	}
	sessions, err := s.sessions.List(ctx, nil, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Create adds a hand-authored session to a draft schedule.
func (s *SessionService) Create(ctx context.Context, scheduleID string, req dto.SessionRequest, actor string) (*dto.SessionMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	return s.mutate(ctx, scheduleID, actor, "session edit", models.AuditActionSessionCreate, func(tx *sqlx.Tx, grid *scheduler.Grid) (sessionChange, error) {
		session := sessionFromRequest(req)
		session.ID = uuid.NewString()
		session.ScheduleID = scheduleID
		session.Source = models.SessionSourceManual
		if err := placeOnGrid(grid, &session); err != nil {
			return sessionChange{}, err
		}
		if err := s.sessions.InsertBatch(ctx, tx, []models.Session{session}); err != nil {
			return sessionChange{}, fmt.Errorf("insert session: %w", err)
		}
		return sessionChange{after: &session}, nil
	})
}

// Update replaces the slot and participants of a session in a draft schedule.
func (s *SessionService) Update(ctx context.Context, scheduleID, sessionID string, req dto.SessionRequest, actor string) (*dto.SessionMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	return s.mutate(ctx, scheduleID, actor, "session edit", models.AuditActionSessionUpdate, func(tx *sqlx.Tx, grid *scheduler.Grid) (sessionChange, error) {
		existing, err := s.sessions.FindByID(ctx, tx, scheduleID, sessionID)
		if err != nil {
			return sessionChange{}, err
		}
		updated := sessionFromRequest(req)
		updated.ID = existing.ID
		updated.ScheduleID = scheduleID
		updated.Source = existing.Source
		updated.CreatedAt = existing.CreatedAt
		updated.SubstituteTeacherID = existing.SubstituteTeacherID
		updated.SubstituteReason = existing.SubstituteReason
		if updated.TeachingLoadID == nil {
			updated.TeachingLoadID = existing.TeachingLoadID
		}
		if req.Status == "" {
			updated.Status = existing.Status
		}
		if err := placeOnGrid(grid, &updated); err != nil {
			return sessionChange{}, err
		}
		if err := s.sessions.Update(ctx, tx, &updated); err != nil {
			return sessionChange{}, err
		}
		return sessionChange{before: existing, after: &updated}, nil
	})
}

// Delete removes a session from a draft schedule.
func (s *SessionService) Delete(ctx context.Context, scheduleID, sessionID, actor string) error {
	_, err := s.mutate(ctx, scheduleID, actor, "session edit", models.AuditActionSessionDelete, func(tx *sqlx.Tx, _ *scheduler.Grid) (sessionChange, error) {
		existing, err := s.sessions.FindByID(ctx, tx, scheduleID, sessionID)
		if err != nil {
			return sessionChange{}, err
		}
		if err := s.sessions.Delete(ctx, tx, scheduleID, sessionID); err != nil {
			return sessionChange{}, err
		}
		return sessionChange{before: existing}, nil
	})
	return err
}

// Substitute hands a session to another teacher. Like every other edit it
// requires a draft schedule; the original teacher stays on the record.
func (s *SessionService) Substitute(ctx context.Context, scheduleID, sessionID string, req dto.SubstituteRequest, actor string) (*dto.SessionMutationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitution payload")
	}
	return s.mutate(ctx, scheduleID, actor, "substitution", models.AuditActionSessionUpdate, func(tx *sqlx.Tx, _ *scheduler.Grid) (sessionChange, error) {
		existing, err := s.sessions.FindByID(ctx, tx, scheduleID, sessionID)
		if err != nil {
			return sessionChange{}, err
		}
		if !existing.Occupies() {
			return sessionChange{}, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("session is %s and cannot be substituted", existing.Status))
		}
		substitute := strings.TrimSpace(req.SubstituteTeacherID)
		if substitute == existing.TeacherID {
			return sessionChange{}, appErrors.Clone(appErrors.ErrValidation, "substitute teacher must differ from the assigned teacher")
		}
		updated := *existing
		reason := strings.TrimSpace(req.Reason)
		updated.SubstituteTeacherID = &substitute
		updated.SubstituteReason = &reason
		updated.Status = models.SessionStatusSubstituted
		if err := s.sessions.Update(ctx, tx, &updated); err != nil {
			return sessionChange{}, err
		}
		return sessionChange{before: existing, after: &updated}, nil
	})
}

// Check reports the conflicts a candidate session would introduce without storing it.
func (s *SessionService) Check(ctx context.Context, scheduleID string, req dto.SessionRequest) (*dto.CheckResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	schedule, err := s.schedules.FindByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	settings, err := loadSettings(ctx, s.settings, nil, schedule.InstitutionID)
	if err != nil {
		return nil, err
	}
	grid, err := scheduler.NewGrid(*settings)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation settings")
	}

	candidate := sessionFromRequest(req)
	candidate.ID = "candidate"
	candidate.ScheduleID = scheduleID
	if err := placeOnGrid(grid, &candidate); err != nil {
		return nil, err
	}

	sessions, err := s.sessions.List(ctx, nil, models.SessionFilter{ScheduleID: scheduleID, Day: candidate.Day})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	detector, err := s.engine.detectorFor(ctx, s.resources, nil, schedule.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource catalog")
	}

	found := detector.DetectAround(append(sessions, candidate), candidate, *settings)
	resp := &dto.CheckResponse{Conflicts: []models.Conflict{}}
	for _, c := range found {
		for _, id := range c.SessionIDs {
			if id == candidate.ID {
				c.ScheduleID = scheduleID
				resp.Conflicts = append(resp.Conflicts, c)
				break
			}
		}
	}
	resp.Clean = len(resp.Conflicts) == 0
	return resp, nil
}

type sessionChange struct {
	before *models.Session
	after  *models.Session
}

type sessionMutation func(tx *sqlx.Tx, grid *scheduler.Grid) (sessionChange, error)

// mutate runs one session change and the follow-up conflict refresh in a single transaction.
func (s *SessionService) mutate(ctx context.Context, scheduleID, actor, action, auditAction string, apply sessionMutation) (resp *dto.SessionMutationResponse, err error) {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.schedules.FindByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	if err = scheduler.EnsureEditable(*schedule, action); err != nil {
		return nil, mapEngineError(err, action+" rejected")
	}
	settings, err := loadSettings(ctx, s.settings, nil, schedule.InstitutionID)
	if err != nil {
		return nil, err
	}
	grid, err := scheduler.NewGrid(*settings)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation settings")
	}
	detector, err := s.engine.detectorFor(ctx, s.resources, nil, schedule.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource catalog")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	change, err := apply(tx, grid)
	if err != nil {
		return nil, mapEngineError(err, "session")
	}
	sessions, err := s.sessions.List(ctx, tx, models.SessionFilter{ScheduleID: scheduleID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	detected, err := detector.DetectConcurrent(ctx, sessions, *settings)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict detection failed")
	}
	reconciled, err := reconcileConflicts(ctx, tx, s.conflicts, s.engine.Tracker, scheduleID, detected)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store conflicts")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit session change")
	}

	result := change.after
	if result == nil {
		result = change.before
	}
	var oldValue, newValue interface{}
	if change.before != nil {
		oldValue = change.before
	}
	if change.after != nil {
		newValue = change.after
	}
	recordAudit(ctx, s.audit, s.logger, actor, auditAction, "session", result.ID, oldValue, newValue)
	publishReconcile(s.metrics, s.events, scheduleID, reconciled)
	_ = s.cache.Invalidate(ctx, summaryCacheKey(scheduleID))
	return &dto.SessionMutationResponse{Session: *result, Conflicts: openConflicts(reconciled)}, nil
}

func sessionFromRequest(req dto.SessionRequest) models.Session {
	status := req.Status
	if status == "" {
		status = models.SessionStatusScheduled
	}
	return models.Session{
		TeachingLoadID: req.TeachingLoadID,
		TeacherID:      strings.TrimSpace(req.TeacherID),
		SubjectID:      strings.TrimSpace(req.SubjectID),
		ClassID:        strings.TrimSpace(req.ClassID),
		RoomID:         req.RoomID,
		Day:            int(req.Day),
		Period:         req.Period,
		Status:         status,
	}
}

// placeOnGrid rejects cells outside the period grid and stamps the period
// times. Break cells are accepted and surface as time conflicts.
func placeOnGrid(grid *scheduler.Grid, session *models.Session) error {
	if !grid.Contains(session.Day, session.Period) {
		return appErrors.WithDetails(appErrors.ErrValidation, "session slot is outside the period grid", []scheduler.Violation{{
			Field:   "period",
			Message: fmt.Sprintf("%s period %d is not part of the configured week", scheduler.DayName(session.Day), session.Period),
		}})
	}
	grid.Stamp(session)
	return nil
}

func parseDayParam(raw string) (int, error) {
	if day := scheduler.ParseDay(raw); day != 0 {
		return day, nil
	}
	return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", raw))
}
