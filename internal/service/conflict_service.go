package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// ConflictServiceDeps groups the collaborators of ConflictService.
type ConflictServiceDeps struct {
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

// ConflictService detects conflicts and drives their resolution workflow.
type ConflictService struct {
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

// NewConflictService constructs the service.
func NewConflictService(deps ConflictServiceDeps) *ConflictService {
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
	return &ConflictService{
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

// List returns stored conflicts of a schedule, highest impact first.
func (s *ConflictService) List(ctx context.Context, scheduleID string, query dto.ConflictQuery) ([]models.Conflict, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict filter")
	}
	conflicts, err := s.conflicts.List(ctx, nil, models.ConflictFilter{
		ScheduleID:   scheduleID,
		Status:       models.ConflictStatus(query.Status),
		Severity:     models.ConflictSeverity(query.Severity),
		Type:         models.ConflictType(query.Type),
		OpenOnly:     query.OpenOnly,
		BlockingOnly: query.BlockingOnly,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	return conflicts, nil
}

// Get loads one conflict.
func (s *ConflictService) Get(ctx context.Context, id string) (*models.Conflict, error) {
	conflict, err := s.conflicts.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conflict not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflict")
	}
	return conflict, nil
}

// Detect runs a full detection pass and reconciles it with the stored records.
func (s *ConflictService) Detect(ctx context.Context, scheduleID, actor string) (resp *dto.DetectResponse, err error) {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	schedule, err := s.schedules.FindByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	settings, err := loadSettings(ctx, s.settings, nil, schedule.InstitutionID)
	if err != nil {
		return nil, err
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
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit detection")
	}

	publishReconcile(s.metrics, s.events, scheduleID, reconciled)
	_ = s.cache.Invalidate(ctx, summaryCacheKey(scheduleID))
	s.logger.Info("conflicts detected",
		zap.String("schedule_id", scheduleID),
		zap.String("actor", actor),
		zap.Int("detected", len(detected)),
		zap.Int("created", len(reconciled.Created)),
		zap.Int("resolved", len(reconciled.Resolved)),
	)
	return &dto.DetectResponse{
		Detected:  len(detected),
		Created:   nonNil(reconciled.Created),
		Resolved:  nonNil(reconciled.Resolved),
		Unchanged: len(reconciled.Unchanged),
	}, nil
}

// Acknowledge records that someone has seen the conflict.
func (s *ConflictService) Acknowledge(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error) {
	return s.transition(ctx, id, actor, func(c models.Conflict) (models.Conflict, error) {
		return s.engine.Tracker.Acknowledge(c, actor, req.Note)
	})
}

// Start marks the conflict as being worked on.
func (s *ConflictService) Start(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error) {
	return s.transition(ctx, id, actor, func(c models.Conflict) (models.Conflict, error) {
		return s.engine.Tracker.Start(c, actor, req.Note)
	})
}

// Escalate hands the conflict to a higher authority.
func (s *ConflictService) Escalate(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error) {
	return s.transition(ctx, id, actor, func(c models.Conflict) (models.Conflict, error) {
		return s.engine.Tracker.Escalate(c, actor, req.Note)
	})
}

// Ignore closes the conflict without remediation.
func (s *ConflictService) Ignore(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error) {
	return s.transition(ctx, id, actor, func(c models.Conflict) (models.Conflict, error) {
		return s.engine.Tracker.Ignore(c, actor, req.Note)
	})
}

// Resolve closes the conflict with the remediation actions taken.
func (s *ConflictService) Resolve(ctx context.Context, id, actor string, req dto.ResolveConflictRequest) (*models.Conflict, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolution payload")
	}
	return s.transition(ctx, id, actor, func(c models.Conflict) (models.Conflict, error) {
		return s.engine.Tracker.Resolve(c, scheduler.Resolution{Resolver: actor, Notes: req.Notes, Actions: req.Actions})
	})
}

type conflictTransition func(models.Conflict) (models.Conflict, error)

func (s *ConflictService) transition(ctx context.Context, id, actor string, apply conflictTransition) (*models.Conflict, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(current.ScheduleID)
	defer unlock()

	current, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := apply(*current)
	if err != nil {
		return nil, mapEngineError(err, "failed to transition conflict")
	}
	if err := s.conflicts.UpdateState(ctx, nil, &next); err != nil {
		return nil, mapEngineError(err, "failed to persist conflict")
	}
	s.afterTransition(ctx, *current, next, actor)
	return &next, nil
}

func (s *ConflictService) afterTransition(ctx context.Context, before, after models.Conflict, actor string) {
	s.metrics.RecordTransition("conflict", string(after.Status))
	s.events.ConflictTransitioned(after, before.Status, actor)
	_ = s.cache.Invalidate(ctx, summaryCacheKey(after.ScheduleID))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionConflictTransition, "conflict", after.ID,
		map[string]string{"status": string(before.Status)}, map[string]string{"status": string(after.Status)})
}

// AutoResolve applies the first verified automatic remedy of one conflict.
// The moved session, the resolved record and a fresh reconcile are stored together.
func (s *ConflictService) AutoResolve(ctx context.Context, id, actor string) (resp *dto.AutoResolveResponse, err error) {
	conflict, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(conflict.ScheduleID)
	defer unlock()

	env, err := s.loadEditable(ctx, conflict.ScheduleID)
	if err != nil {
		return nil, err
	}
	conflict, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	outcome, err := scheduler.NewAutoResolver(env.detector).Resolve(*conflict, env.sessions, *env.settings)
	if err != nil {
		return nil, mapEngineError(err, "automatic resolution failed")
	}
	resp = &dto.AutoResolveResponse{Attempted: 1, Resolved: []models.Conflict{}, Skipped: []dto.AutoSkip{}}
	if !outcome.Applied {
		resp.Skipped = append(resp.Skipped, dto.AutoSkip{ConflictID: conflict.ID, Reason: outcome.Reason})
		return resp, nil
	}

	resolved, err := s.engine.Tracker.Resolve(*conflict, scheduler.Resolution{
		Resolver: actor,
		Notes:    "resolved automatically",
		Actions:  []models.ResolutionAction{outcome.Action},
	})
	if err != nil {
		return nil, mapEngineError(err, "failed to resolve conflict")
	}

	reconciled, err := s.applyMoves(ctx, env, outcome.Changed, &resolved)
	if err != nil {
		return nil, err
	}
	resp.Applied = 1
	resp.Resolved = append(resp.Resolved, resolved)
	resp.Resolved = append(resp.Resolved, reconciled.Resolved...)

	s.afterTransition(ctx, *conflict, resolved, actor)
	publishReconcile(s.metrics, s.events, conflict.ScheduleID, reconciled)
	return resp, nil
}

// AutoResolveSchedule greedily applies automatic remedies across a draft schedule.
func (s *ConflictService) AutoResolveSchedule(ctx context.Context, scheduleID, actor string) (resp *dto.AutoResolveResponse, err error) {
	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	env, err := s.loadEditable(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	stored, err := s.conflicts.List(ctx, nil, models.ConflictFilter{ScheduleID: scheduleID, OpenOnly: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conflicts")
	}

	resp = &dto.AutoResolveResponse{Resolved: []models.Conflict{}, Skipped: []dto.AutoSkip{}}
	for _, c := range stored {
		if c.AutoResolvable {
			resp.Attempted++
		}
	}

	updated, moved, applied, err := autoResolveSessions(env.detector, scheduler.NewAutoResolver(env.detector), env.sessions, *env.settings)
	if err != nil {
		return nil, mapEngineError(err, "automatic resolution failed")
	}
	resp.Applied = applied
	if applied == 0 {
		for _, c := range stored {
			if c.AutoResolvable {
				resp.Skipped = append(resp.Skipped, dto.AutoSkip{ConflictID: c.ID, Reason: "no automatic remedy removed the conflict without introducing a new one"})
			}
		}
		return resp, nil
	}

	var changes []models.Session
	for _, session := range updated {
		if moved[session.ID] {
			changes = append(changes, session)
		}
	}
	reconciled, err := s.applyMoves(ctx, env, changes, nil)
	if err != nil {
		return nil, err
	}
	resp.Resolved = append(resp.Resolved, reconciled.Resolved...)

	stillOpen := make(map[string]bool, len(reconciled.Unchanged))
	for _, c := range reconciled.Unchanged {
		stillOpen[c.ID] = true
	}
	for _, c := range stored {
		if c.AutoResolvable && stillOpen[c.ID] {
			resp.Skipped = append(resp.Skipped, dto.AutoSkip{ConflictID: c.ID, Reason: "conflict still detected after automatic remedies"})
		}
	}

	publishReconcile(s.metrics, s.events, scheduleID, reconciled)
	s.logger.Info("schedule auto resolved",
		zap.String("schedule_id", scheduleID),
		zap.String("actor", actor),
		zap.Int("applied", applied),
		zap.Int("resolved", len(reconciled.Resolved)),
	)
	return resp, nil
}

type resolveEnv struct {
	schedule *models.Schedule
	settings *models.GenerationSettings
	sessions []models.Session
	detector *scheduler.Detector
}

func (s *ConflictService) loadEditable(ctx context.Context, scheduleID string) (*resolveEnv, error) {
	schedule, err := s.schedules.FindByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	if err := scheduler.EnsureEditable(*schedule, "automatic resolution"); err != nil {
		return nil, mapEngineError(err, "automatic resolution rejected")
	}
	settings, err := loadSettings(ctx, s.settings, nil, schedule.InstitutionID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.List(ctx, nil, models.SessionFilter{ScheduleID: scheduleID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	detector, err := s.engine.detectorFor(ctx, s.resources, nil, schedule.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource catalog")
	}
	return &resolveEnv{schedule: schedule, settings: settings, sessions: sessions, detector: detector}, nil
}

// applyMoves stores moved sessions, an optional explicitly resolved record and
// the reconcile of a fresh detection pass in one transaction.
func (s *ConflictService) applyMoves(ctx context.Context, env *resolveEnv, changes []models.Session, resolved *models.Conflict) (result scheduler.ReconcileResult, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range changes {
		if err = s.sessions.Update(ctx, tx, &changes[i]); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move session")
		}
	}
	if resolved != nil {
		if err = s.conflicts.UpdateState(ctx, tx, resolved); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist conflict")
		}
	}

	sessions, err := s.sessions.List(ctx, tx, models.SessionFilter{ScheduleID: env.schedule.ID})
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	detected, err := env.detector.DetectConcurrent(ctx, sessions, *env.settings)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict detection failed")
	}
	result, err = reconcileConflicts(ctx, tx, s.conflicts, s.engine.Tracker, env.schedule.ID, detected)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store conflicts")
	}
	if err = tx.Commit(); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit resolution")
	}
	_ = s.cache.Invalidate(ctx, summaryCacheKey(env.schedule.ID))
	return result, nil
}

func nonNil(conflicts []models.Conflict) []models.Conflict {
	if conflicts == nil {
		return []models.Conflict{}
	}
	return conflicts
}
