package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/tracing"
)

// GenerationServiceDeps groups the collaborators of GenerationService.
type GenerationServiceDeps struct {
	Schedules scheduleRepository
	Sessions  sessionStore
	Conflicts conflictStore
	Loads     teachingLoadReader
	Settings  settingsStore
	Resources catalogReader
	Tx        txProvider
	Engine    *Engine
	Locks     *ScheduleLocks
	Cache     *CacheService
	Events    *EventService
	Audit     auditLogger
	Metrics   *MetricsService
	Logger    *zap.Logger
	Now       func() time.Time
}

// GenerationService runs the timetable generator against stored loads and settings.
type GenerationService struct {
	schedules scheduleRepository
	sessions  sessionStore
	conflicts conflictStore
	loads     teachingLoadReader
	settings  settingsStore
	resources catalogReader
	tx        txProvider
	engine    *Engine
	locks     *ScheduleLocks
	cache     *CacheService
	events    *EventService
	audit     auditLogger
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewGenerationService constructs the service.
func NewGenerationService(deps GenerationServiceDeps) *GenerationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Engine == nil {
		deps.Engine = DefaultEngine()
	}
	if deps.Locks == nil {
		deps.Locks = NewScheduleLocks()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &GenerationService{
		schedules: deps.Schedules,
		sessions:  deps.Sessions,
		conflicts: deps.Conflicts,
		loads:     deps.Loads,
		settings:  deps.Settings,
		resources: deps.Resources,
		tx:        deps.Tx,
		engine:    deps.Engine,
		locks:     deps.Locks,
		cache:     deps.Cache,
		events:    deps.Events,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

type generationMeta struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	GeneratedBy  string          `json:"generated_by,omitempty"`
	Stats        scheduler.Stats `json:"stats"`
	Unplaced     int             `json:"unplaced"`
	Warnings     int             `json:"warnings"`
	AutoResolved int             `json:"auto_resolved"`
}

// Generate replaces the generated sessions of a draft schedule. Hand-authored
// sessions stay fixed and count toward their loads. A dry run returns the
// proposal and its conflicts without writing anything.
func (s *GenerationService) Generate(ctx context.Context, scheduleID string, req dto.GenerateRequest, actor string) (resp *dto.GenerateResponse, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "GenerationService.Generate")
	span.SetAttributes(attribute.String("schedule.id", scheduleID), attribute.Bool("generation.dry_run", req.DryRun))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	unlock := s.locks.Lock(scheduleID)
	defer unlock()

	started := time.Now()
	schedule, err := s.schedules.FindByID(ctx, nil, scheduleID)
	if err != nil {
		return nil, mapEngineError(err, "schedule")
	}
	if err = scheduler.EnsureEditable(*schedule, "generation"); err != nil {
		return nil, mapEngineError(err, "generation rejected")
	}

	settings, err := loadSettings(ctx, s.settings, nil, schedule.InstitutionID)
	if err != nil {
		return nil, err
	}
	loads, err := s.loads.List(ctx, nil, models.TeachingLoadFilter{
		InstitutionID:    schedule.InstitutionID,
		AcademicPeriodID: schedule.AcademicPeriodID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching loads")
	}
	current, err := s.sessions.List(ctx, nil, models.SessionFilter{ScheduleID: scheduleID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	fixed := make([]models.Session, 0, len(current))
	for _, session := range current {
		if session.Source != models.SessionSourceGenerated {
			fixed = append(fixed, session)
		}
	}

	result, err := s.engine.Generator.Generate(loads, *settings, fixed)
	if err != nil {
		return nil, mapEngineError(err, "generation failed")
	}
	for i := range result.Sessions {
		result.Sessions[i].ScheduleID = scheduleID
	}

	detector, err := s.engine.detectorFor(ctx, s.resources, nil, schedule.InstitutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resource catalog")
	}

	// Automatic remedies during generation only move generated sessions.
	sessions := result.Sessions
	autoResolved := 0
	if settings.Preferences.WithDefaults().ConflictResolutionStrategy == models.ConflictStrategyAutomatic {
		sessions, _, autoResolved, err = autoResolveSessions(detector, scheduler.NewAutoResolver(detector).GeneratedOnly(), sessions, *settings)
		if err != nil {
			return nil, mapEngineError(err, "automatic conflict resolution failed")
		}
	}

	detected, err := detector.DetectConcurrent(ctx, sessions, *settings)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict detection failed")
	}

	resp = &dto.GenerateResponse{
		ScheduleID:   scheduleID,
		DryRun:       req.DryRun,
		Sessions:     sessions,
		Unplaced:     result.Unplaced,
		Warnings:     result.Warnings,
		Stats:        result.Stats,
		AutoResolved: autoResolved,
	}

	if req.DryRun {
		for i := range detected {
			detected[i].ScheduleID = scheduleID
		}
		resp.Conflicts = detected
		s.metrics.ObserveGeneration(true, result.Stats.SuccessRate, time.Since(started))
		return resp, nil
	}

	reconciled, err := s.persist(ctx, schedule, sessions, detected, generationMeta{
		GeneratedAt:  s.now(),
		GeneratedBy:  actor,
		Stats:        result.Stats,
		Unplaced:     len(result.Unplaced),
		Warnings:     len(result.Warnings),
		AutoResolved: autoResolved,
	})
	if err != nil {
		return nil, err
	}
	resp.Conflicts = openConflicts(reconciled)

	s.metrics.ObserveGeneration(false, result.Stats.SuccessRate, time.Since(started))
	publishReconcile(s.metrics, s.events, scheduleID, reconciled)
	_ = s.cache.Invalidate(ctx, summaryCacheKey(scheduleID))
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionScheduleGenerate, "schedule", scheduleID, nil, result.Stats)
	s.logger.Info("schedule generated",
		zap.String("schedule_id", scheduleID),
		zap.Int("sessions", len(sessions)),
		zap.Int("unplaced", len(result.Unplaced)),
		zap.Int("conflicts", len(resp.Conflicts)),
		zap.Float64("success_rate", result.Stats.SuccessRate),
		zap.Duration("duration", time.Since(started)),
	)
	return resp, nil
}

func (s *GenerationService) persist(ctx context.Context, schedule *models.Schedule, sessions []models.Session, detected []models.Conflict, meta generationMeta) (result scheduler.ReconcileResult, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.sessions.DeleteGenerated(ctx, tx, schedule.ID); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear generated sessions")
	}
	var generated []models.Session
	for _, session := range sessions {
		if session.Source == models.SessionSourceGenerated {
			generated = append(generated, session)
		}
	}
	if len(generated) > 0 {
		if err = s.sessions.InsertBatch(ctx, tx, generated); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated sessions")
		}
	}

	result, err = reconcileConflicts(ctx, tx, s.conflicts, s.engine.Tracker, schedule.ID, detected)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store conflicts")
	}

	raw, err := json.Marshal(map[string]generationMeta{"generation": meta})
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode generation metadata")
	}
	updated := *schedule
	updated.Meta = types.JSONText(raw)
	if err = s.schedules.UpdateLifecycle(ctx, tx, &updated); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}

	if err = tx.Commit(); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit generation")
	}
	return result, nil
}
