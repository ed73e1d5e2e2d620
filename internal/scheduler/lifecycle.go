package scheduler

import (
	"fmt"
	"time"

	"github.com/noah-isme/sma-timetable/internal/models"
)

var scheduleTransitions = map[models.ScheduleStatus][]models.ScheduleStatus{
	models.ScheduleStatusDraft:         {models.ScheduleStatusPendingReview},
	models.ScheduleStatusPendingReview: {models.ScheduleStatusApproved},
	models.ScheduleStatusApproved:      {models.ScheduleStatusActive, models.ScheduleStatusDraft},
	models.ScheduleStatusActive:        {models.ScheduleStatusArchived},
}

// CanTransitionSchedule reports whether the lifecycle permits the move.
func CanTransitionSchedule(from, to models.ScheduleStatus) bool {
	for _, next := range scheduleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle enforces schedule state changes. Methods return updated copies.
type Lifecycle struct {
	now func() time.Time
}

// NewLifecycle builds a lifecycle manager; a nil clock uses UTC wall time.
func NewLifecycle(now func() time.Time) *Lifecycle {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Lifecycle{now: now}
}

// EnsureEditable rejects generation and session edits outside draft.
func EnsureEditable(s models.Schedule, action string) error {
	if s.Status == models.ScheduleStatusDraft {
		return nil
	}
	return &TransitionError{
		Entity: "schedule",
		From:   string(s.Status),
		To:     string(s.Status),
		Reason: fmt.Sprintf("%s is only allowed while the schedule is draft", action),
	}
}

// Submit sends a draft for review. Open blocking conflicts prevent it.
func (l *Lifecycle) Submit(s models.Schedule, actor string, conflicts []models.Conflict) (models.Schedule, error) {
	blocking := 0
	for _, c := range conflicts {
		if c.Open() && c.BlocksApproval {
			blocking++
		}
	}
	if blocking > 0 {
		return s, &TransitionError{
			Entity: "schedule",
			From:   string(s.Status),
			To:     string(models.ScheduleStatusPendingReview),
			Reason: fmt.Sprintf("%d unresolved blocking conflict(s)", blocking),
		}
	}
	next, err := l.move(s, models.ScheduleStatusPendingReview)
	if err != nil {
		return s, err
	}
	next.SubmittedBy = stringRef(actor)
	next.SubmittedAt = timeRef(next.UpdatedAt)
	return next, nil
}

// Approve records the approver and approval time.
func (l *Lifecycle) Approve(s models.Schedule, approver string) (models.Schedule, error) {
	if approver == "" {
		return s, &ValidationError{Violations: []Violation{{Field: "approver", Message: "is required"}}}
	}
	next, err := l.move(s, models.ScheduleStatusApproved)
	if err != nil {
		return s, err
	}
	next.ApprovedBy = stringRef(approver)
	next.ApprovedAt = timeRef(next.UpdatedAt)
	return next, nil
}

// Reject returns an approved schedule to draft and clears the approval.
func (l *Lifecycle) Reject(s models.Schedule) (models.Schedule, error) {
	next, err := l.move(s, models.ScheduleStatusDraft)
	if err != nil {
		return s, err
	}
	next.ApprovedBy = nil
	next.ApprovedAt = nil
	next.SubmittedBy = nil
	next.SubmittedAt = nil
	return next, nil
}

// Activate makes an approved schedule live. When another schedule of the
// same institution and academic period is active it is archived and returned.
func (l *Lifecycle) Activate(s models.Schedule, current *models.Schedule) (models.Schedule, *models.Schedule, error) {
	next, err := l.move(s, models.ScheduleStatusActive)
	if err != nil {
		return s, nil, err
	}
	next.ActivatedAt = timeRef(next.UpdatedAt)

	if current == nil || current.ID == s.ID || current.Status != models.ScheduleStatusActive {
		return next, nil, nil
	}
	if current.InstitutionID != s.InstitutionID || current.AcademicPeriodID != s.AcademicPeriodID {
		return next, nil, nil
	}
	archived, err := l.Archive(*current)
	if err != nil {
		return s, nil, err
	}
	return next, &archived, nil
}

// Archive retires an active schedule. Archived is terminal.
func (l *Lifecycle) Archive(s models.Schedule) (models.Schedule, error) {
	next, err := l.move(s, models.ScheduleStatusArchived)
	if err != nil {
		return s, err
	}
	next.ArchivedAt = timeRef(next.UpdatedAt)
	return next, nil
}

func (l *Lifecycle) move(s models.Schedule, to models.ScheduleStatus) (models.Schedule, error) {
	if !CanTransitionSchedule(s.Status, to) {
		return s, &TransitionError{Entity: "schedule", From: string(s.Status), To: string(to)}
	}
	next := s
	next.Status = to
	next.UpdatedAt = l.now()
	return next, nil
}

func stringRef(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func timeRef(t time.Time) *time.Time {
	return &t
}
