package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type catalogReader interface {
	ListRooms(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.Room, error)
	ListClasses(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.ClassGroup, error)
}

type auditLogger interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Engine bundles the stateless timetable components shared by the services.
type Engine struct {
	Detector  *scheduler.Detector
	Generator *scheduler.Generator
	Tracker   *scheduler.Tracker
	Lifecycle *scheduler.Lifecycle
}

// NewEngine wires the engine from scheduler configuration. A configured rules
// file replaces the built-in remediation table.
func NewEngine(cfg config.SchedulerConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := scheduler.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := scheduler.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load scheduler rules: %w", err)
		}
		rules = loaded
		logger.Info("scheduler rules loaded", zap.String("path", cfg.RulesFile))
	}

	detector := scheduler.NewDetector(
		scheduler.WithRules(rules),
		scheduler.WithCapacityThreshold(cfg.CapacityCriticalPercent),
		scheduler.WithConcurrency(cfg.DetectConcurrency),
	)
	generator := scheduler.NewGenerator(scheduler.Options{
		MaxSwapAttempts:     cfg.MaxSwapAttempts,
		GapRepairIterations: cfg.GapRepairIterations,
		TeacherWeeklyLimit:  cfg.TeacherWeeklyLimit,
		MorningCutoff:       cfg.MorningCutoff,
	})

	return &Engine{
		Detector:  detector,
		Generator: generator,
		Tracker:   scheduler.NewTracker(),
		Lifecycle: scheduler.NewLifecycle(nil),
	}, nil
}

// DefaultEngine returns an engine with built-in rules and thresholds.
func DefaultEngine() *Engine {
	return &Engine{
		Detector:  scheduler.NewDetector(),
		Generator: scheduler.NewGenerator(scheduler.Options{}),
		Tracker:   scheduler.NewTracker(),
		Lifecycle: scheduler.NewLifecycle(nil),
	}
}

// detectorFor binds the room and class catalogs of an institution to the detector.
func (e *Engine) detectorFor(ctx context.Context, resources catalogReader, exec sqlx.ExtContext, institutionID string) (*scheduler.Detector, error) {
	if resources == nil {
		return e.Detector, nil
	}
	rooms, err := resources.ListRooms(ctx, exec, institutionID)
	if err != nil {
		return nil, err
	}
	classes, err := resources.ListClasses(ctx, exec, institutionID)
	if err != nil {
		return nil, err
	}
	catalog := scheduler.Catalog{
		RoomCapacity:   make(map[string]int, len(rooms)),
		ClassHeadcount: make(map[string]int, len(classes)),
	}
	for _, room := range rooms {
		if room.Capacity != nil {
			catalog.RoomCapacity[room.ID] = *room.Capacity
		}
	}
	for _, class := range classes {
		if class.Headcount != nil {
			catalog.ClassHeadcount[class.ID] = *class.Headcount
		}
	}
	return e.Detector.With(scheduler.WithCatalog(catalog)), nil
}

// ScheduleLocks serialises mutations per schedule.
type ScheduleLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScheduleLocks constructs an empty lock table.
func NewScheduleLocks() *ScheduleLocks {
	return &ScheduleLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex of a schedule and returns its release func.
func (l *ScheduleLocks) Lock(scheduleID string) func() {
	l.mu.Lock()
	m, ok := l.locks[scheduleID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[scheduleID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// mapEngineError converts engine and storage errors into typed API errors.
func mapEngineError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var validation *scheduler.ValidationError
	if errors.As(err, &validation) {
		return appErrors.WithDetails(appErrors.ErrValidation, validation.Error(), validation.Violations)
	}
	var transition *scheduler.TransitionError
	if errors.As(err, &transition) {
		return appErrors.Wrap(err, appErrors.ErrIllegalTransition.Code, appErrors.ErrIllegalTransition.Status, transition.Error())
	}
	if errors.Is(err, scheduler.ErrNotAutoResolvable) {
		return appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, err.Error())
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, message+": not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

