package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/pkg/jobs"
)

// Event types published onto the worker queue.
const (
	EventScheduleTransitioned = "schedule.transitioned"
	EventConflictsDetected    = "conflicts.detected"
	EventConflictTransitioned = "conflict.transitioned"
)

// ScheduleEvent describes an applied schedule lifecycle move.
type ScheduleEvent struct {
	ScheduleID    string                `json:"schedule_id"`
	InstitutionID string                `json:"institution_id"`
	From          models.ScheduleStatus `json:"from"`
	To            models.ScheduleStatus `json:"to"`
	Actor         string                `json:"actor"`
	At            time.Time             `json:"at"`
}

// ConflictSetEvent summarises a reconcile pass.
type ConflictSetEvent struct {
	ScheduleID string    `json:"schedule_id"`
	Created    []string  `json:"created"`
	Resolved   []string  `json:"resolved"`
	Unchanged  int       `json:"unchanged"`
	At         time.Time `json:"at"`
}

// ConflictEvent describes one conflict status change.
type ConflictEvent struct {
	ConflictID string                `json:"conflict_id"`
	ScheduleID string                `json:"schedule_id"`
	From       models.ConflictStatus `json:"from"`
	To         models.ConflictStatus `json:"to"`
	Actor      string                `json:"actor"`
	At         time.Time             `json:"at"`
}

// EventPublisher accepts events for asynchronous delivery.
type EventPublisher interface {
	Publish(jobType string, payload interface{}) error
}

// EventService publishes domain events. Delivery failures never fail the caller.
type EventService struct {
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs the publisher facade.
func NewEventService(publisher EventPublisher, logger *zap.Logger) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{publisher: publisher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ScheduleTransitioned publishes a lifecycle move.
func (s *EventService) ScheduleTransitioned(schedule models.Schedule, from models.ScheduleStatus, actor string) {
	if s == nil {
		return
	}
	s.publish(EventScheduleTransitioned, ScheduleEvent{
		ScheduleID:    schedule.ID,
		InstitutionID: schedule.InstitutionID,
		From:          from,
		To:            schedule.Status,
		Actor:         actor,
		At:            s.now(),
	})
}

// ConflictsDetected publishes the outcome of a reconcile pass when it changed anything.
func (s *EventService) ConflictsDetected(scheduleID string, result scheduler.ReconcileResult) {
	if s == nil || (len(result.Created) == 0 && len(result.Resolved) == 0) {
		return
	}
	event := ConflictSetEvent{ScheduleID: scheduleID, Unchanged: len(result.Unchanged), At: s.now()}
	for _, c := range result.Created {
		event.Created = append(event.Created, c.ID)
	}
	for _, c := range result.Resolved {
		event.Resolved = append(event.Resolved, c.ID)
	}
	s.publish(EventConflictsDetected, event)
}

// ConflictTransitioned publishes a conflict status change.
func (s *EventService) ConflictTransitioned(conflict models.Conflict, from models.ConflictStatus, actor string) {
	if s == nil {
		return
	}
	s.publish(EventConflictTransitioned, ConflictEvent{
		ConflictID: conflict.ID,
		ScheduleID: conflict.ScheduleID,
		From:       from,
		To:         conflict.Status,
		Actor:      actor,
		At:         s.now(),
	})
}

func (s *EventService) publish(kind string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(kind, payload); err != nil {
		s.logger.Warn("event publish failed", zap.String("type", kind), zap.Error(err))
	}
}

// LogEventSink returns a queue handler that writes every event to the log.
func LogEventSink(logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		logger.Info("timetable event",
			zap.String("event_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempt", job.Attempt),
			zap.Any("payload", job.Payload),
		)
		return nil
	}
}
