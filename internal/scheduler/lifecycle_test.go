package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

var allScheduleStatuses = []models.ScheduleStatus{
	models.ScheduleStatusDraft,
	models.ScheduleStatusPendingReview,
	models.ScheduleStatusApproved,
	models.ScheduleStatusActive,
	models.ScheduleStatusArchived,
}

func TestScheduleTransitionTable(t *testing.T) {
	allowed := map[[2]models.ScheduleStatus]bool{
		{models.ScheduleStatusDraft, models.ScheduleStatusPendingReview}:  true,
		{models.ScheduleStatusPendingReview, models.ScheduleStatusApproved}: true,
		{models.ScheduleStatusApproved, models.ScheduleStatusActive}:        true,
		{models.ScheduleStatusApproved, models.ScheduleStatusDraft}:         true,
		{models.ScheduleStatusActive, models.ScheduleStatusArchived}:        true,
	}
	for _, from := range allScheduleStatuses {
		for _, to := range allScheduleStatuses {
			assert.Equal(t, allowed[[2]models.ScheduleStatus{from, to}], CanTransitionSchedule(from, to), "%s -> %s", from, to)
		}
	}
}

func TestLifecycleFullPath(t *testing.T) {
	lc := NewLifecycle(func() time.Time { return fixedNow })
	s := models.Schedule{ID: "sched-1", InstitutionID: "inst-1", AcademicPeriodID: "term-1", Status: models.ScheduleStatusDraft}

	s, err := lc.Submit(s, "admin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPendingReview, s.Status)
	assert.Equal(t, "admin-1", *s.SubmittedBy)

	s, err = lc.Approve(s, "principal")
	require.NoError(t, err)
	assert.Equal(t, "principal", *s.ApprovedBy)
	assert.Equal(t, fixedNow, *s.ApprovedAt)

	previous := models.Schedule{ID: "sched-0", InstitutionID: "inst-1", AcademicPeriodID: "term-1", Status: models.ScheduleStatusActive}
	s, archived, err := lc.Activate(s, &previous)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusActive, s.Status)
	require.NotNil(t, archived)
	assert.Equal(t, models.ScheduleStatusArchived, archived.Status)
	assert.Equal(t, models.ScheduleStatusActive, previous.Status, "input must not be mutated")

	s, err = lc.Archive(s)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusArchived, s.Status)

	for _, to := range allScheduleStatuses {
		assert.False(t, CanTransitionSchedule(s.Status, to))
	}
}

func TestLifecycleSubmitBlockedByConflicts(t *testing.T) {
	lc := NewLifecycle(nil)
	s := models.Schedule{ID: "sched-1", Status: models.ScheduleStatusDraft}
	conflicts := []models.Conflict{
		{ID: "c1", Status: models.ConflictStatusPending, BlocksApproval: true},
		{ID: "c2", Status: models.ConflictStatusResolved, BlocksApproval: true},
		{ID: "c3", Status: models.ConflictStatusPending},
	}

	next, err := lc.Submit(s, "admin-1", conflicts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Contains(t, err.Error(), "1 unresolved blocking conflict")
	assert.Equal(t, s, next)

	_, err = lc.Submit(s, "admin-1", conflicts[1:])
	assert.NoError(t, err)
}

func TestLifecycleRejectReturnsToDraft(t *testing.T) {
	lc := NewLifecycle(func() time.Time { return fixedNow })
	approver := "principal"
	s := models.Schedule{ID: "sched-1", Status: models.ScheduleStatusApproved, ApprovedBy: &approver, ApprovedAt: &fixedNow}

	draft, err := lc.Reject(s)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusDraft, draft.Status)
	assert.Nil(t, draft.ApprovedBy)

	_, err = lc.Reject(models.Schedule{Status: models.ScheduleStatusPendingReview})
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestLifecycleActivateIgnoresOtherPeriods(t *testing.T) {
	lc := NewLifecycle(nil)
	s := models.Schedule{ID: "sched-1", InstitutionID: "inst-1", AcademicPeriodID: "term-2", Status: models.ScheduleStatusApproved}
	other := models.Schedule{ID: "sched-0", InstitutionID: "inst-1", AcademicPeriodID: "term-1", Status: models.ScheduleStatusActive}

	_, archived, err := lc.Activate(s, &other)
	require.NoError(t, err)
	assert.Nil(t, archived)
}

func TestEnsureEditable(t *testing.T) {
	assert.NoError(t, EnsureEditable(models.Schedule{Status: models.ScheduleStatusDraft}, "generate"))
	for _, status := range allScheduleStatuses[1:] {
		err := EnsureEditable(models.Schedule{Status: status}, "generate")
		assert.True(t, errors.Is(err, ErrIllegalTransition), status)
	}
}

func TestApproveRequiresApprover(t *testing.T) {
	_, err := NewLifecycle(nil).Approve(models.Schedule{Status: models.ScheduleStatusPendingReview}, "")
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}
