package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

var fixedNow = time.Date(2024, 7, 15, 8, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	return NewTracker(WithClock(func() time.Time { return fixedNow }), WithIDGenerator(sequentialIDs("conf")))
}

func pendingConflict(severity models.ConflictSeverity) models.Conflict {
	return models.Conflict{
		ID:          "conf-x",
		ScheduleID:  "sched-1",
		Type:        models.ConflictTypeRoom,
		Severity:    severity,
		Status:      models.ConflictStatusPending,
		Fingerprint: "room:lab-1@1.1:s1,s2",
	}
}

func TestTrackerHappyPath(t *testing.T) {
	tracker := newTestTracker()
	c := pendingConflict(models.SeverityHigh)

	c, err := tracker.Acknowledge(c, "admin-1", "")
	require.NoError(t, err)
	c, err = tracker.Start(c, "admin-1", "moving lab session")
	require.NoError(t, err)
	c, err = tracker.Resolve(c, Resolution{
		Resolver: "admin-1",
		Notes:    "moved to lab-2",
		Actions:  []models.ResolutionAction{models.ActionChangeRoom},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ConflictStatusResolved, c.Status)
	require.NotNil(t, c.ResolvedBy)
	assert.Equal(t, "admin-1", *c.ResolvedBy)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, fixedNow, *c.ResolvedAt)
	assert.Equal(t, models.StringList{"change_room"}, c.ResolutionActions)
	require.Len(t, c.History, 3)
	assert.Equal(t, models.ConflictStatusPending, c.History[0].From)
	assert.Equal(t, models.ConflictStatusResolved, c.History[2].To)
}

func TestTrackerResolveRequiresResolverAndAction(t *testing.T) {
	c := pendingConflict(models.SeverityHigh)
	_, err := newTestTracker().Resolve(c, Resolution{})

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Violations, 2)
}

func TestTrackerNeverReopens(t *testing.T) {
	tracker := newTestTracker()
	resolved, err := tracker.Resolve(pendingConflict(models.SeverityHigh), Resolution{
		Resolver: "admin-1",
		Actions:  []models.ResolutionAction{models.ActionManualReview},
	})
	require.NoError(t, err)

	for _, step := range []func(models.Conflict) (models.Conflict, error){
		func(c models.Conflict) (models.Conflict, error) { return tracker.Acknowledge(c, "admin-1", "") },
		func(c models.Conflict) (models.Conflict, error) { return tracker.Start(c, "admin-1", "") },
		func(c models.Conflict) (models.Conflict, error) { return tracker.Escalate(c, "admin-1", "") },
		func(c models.Conflict) (models.Conflict, error) { return tracker.Ignore(c, "admin-1", "") },
		func(c models.Conflict) (models.Conflict, error) {
			return tracker.Resolve(c, Resolution{Resolver: "x", Actions: []models.ResolutionAction{models.ActionManualReview}})
		},
	} {
		next, err := step(resolved)
		assert.True(t, errors.Is(err, ErrIllegalTransition))
		assert.Equal(t, resolved, next)
	}
}

func TestTrackerIgnore(t *testing.T) {
	tracker := newTestTracker()

	ignored, err := tracker.Ignore(pendingConflict(models.SeverityMedium), "admin-1", "accepted")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusIgnored, ignored.Status)

	_, err = tracker.Ignore(pendingConflict(models.SeverityCritical), "admin-1", "")
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	started, err := tracker.Start(mustAck(t, tracker, pendingConflict(models.SeverityMedium)), "admin-1", "")
	require.NoError(t, err)
	_, err = tracker.Ignore(started, "admin-1", "")
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func mustAck(t *testing.T, tracker *Tracker, c models.Conflict) models.Conflict {
	t.Helper()
	acked, err := tracker.Acknowledge(c, "admin-1", "")
	require.NoError(t, err)
	return acked
}

func TestTrackerEscalation(t *testing.T) {
	tracker := newTestTracker()
	escalated, err := tracker.Escalate(pendingConflict(models.SeverityHigh), "teacher-1", "needs principal")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusEscalated, escalated.Status)

	started, err := tracker.Start(escalated, "principal", "")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictStatusInProgress, started.Status)

	_, err = tracker.Acknowledge(escalated, "principal", "")
	assert.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestTrackerPendingCannotStartDirectly(t *testing.T) {
	_, err := newTestTracker().Start(pendingConflict(models.SeverityHigh), "admin-1", "")
	var tErr *TransitionError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "pending", tErr.From)
	assert.Equal(t, "in_progress", tErr.To)
}

func TestReconcile(t *testing.T) {
	tracker := newTestTracker()
	stillOpen := models.Conflict{ID: "c-open", Fingerprint: "fp-open", Severity: models.SeverityHigh, Status: models.ConflictStatusAcknowledged}
	vanished := models.Conflict{ID: "c-gone", Fingerprint: "fp-gone", Status: models.ConflictStatusPending}
	resolved := models.Conflict{ID: "c-done", Fingerprint: "fp-back", Status: models.ConflictStatusResolved}
	ignored := models.Conflict{ID: "c-ign", Fingerprint: "fp-ignored", Status: models.ConflictStatusIgnored}

	detected := []models.Conflict{
		{Fingerprint: "fp-open", Severity: models.SeverityHigh},
		{Fingerprint: "fp-back", Severity: models.SeverityCritical},
		{Fingerprint: "fp-ignored", Severity: models.SeverityLow},
		{Fingerprint: "fp-new", Severity: models.SeverityMedium},
	}

	result := tracker.Reconcile("sched-1", []models.Conflict{stillOpen, vanished, resolved, ignored}, detected)

	require.Len(t, result.Unchanged, 1)
	assert.Equal(t, "c-open", result.Unchanged[0].ID)

	require.Len(t, result.Created, 2)
	assert.Equal(t, "fp-back", result.Created[0].Fingerprint)
	assert.NotEqual(t, "c-done", result.Created[0].ID)
	assert.Equal(t, "sched-1", result.Created[0].ScheduleID)
	assert.Equal(t, models.ConflictStatusPending, result.Created[0].Status)
	assert.Equal(t, fixedNow, result.Created[0].DetectedAt)
	assert.Equal(t, "fp-new", result.Created[1].Fingerprint)

	require.Len(t, result.Resolved, 1)
	gone := result.Resolved[0]
	assert.Equal(t, "c-gone", gone.ID)
	assert.Equal(t, models.ConflictStatusResolved, gone.Status)
	assert.Equal(t, SystemActor, *gone.ResolvedBy)
	assert.Equal(t, models.StringList{"revalidated"}, gone.ResolutionActions)
}

func TestReconcileReplacesDriftedAssessment(t *testing.T) {
	tracker := newTestTracker()
	lifecycle := NewLifecycle(func() time.Time { return fixedNow })
	s := session("s1", "teacher-a", "9A", 1, 1)
	s.RoomID = strRef("room-1")
	detectAt := func(headcount int) []models.Conflict {
		detector := NewDetector(WithCatalog(Catalog{
			RoomCapacity:   map[string]int{"room-1": 30},
			ClassHeadcount: map[string]int{"9A": headcount},
		}))
		return detector.Detect([]models.Session{s}, baseSettings())
	}

	first := tracker.Reconcile("sched-1", nil, detectAt(35))
	require.Len(t, first.Created, 1)
	medium := first.Created[0]
	assert.Equal(t, models.SeverityMedium, medium.Severity)
	assert.False(t, medium.BlocksApproval)

	second := tracker.Reconcile("sched-1", []models.Conflict{medium}, detectAt(45))
	assert.Empty(t, second.Unchanged)
	require.Len(t, second.Created, 1)
	critical := second.Created[0]
	assert.NotEqual(t, medium.ID, critical.ID)
	assert.Equal(t, medium.Fingerprint, critical.Fingerprint)
	assert.Equal(t, models.SeverityCritical, critical.Severity)
	assert.True(t, critical.BlocksApproval)
	assert.Equal(t, models.ConflictStatusPending, critical.Status)

	require.Len(t, second.Resolved, 1)
	superseded := second.Resolved[0]
	assert.Equal(t, medium.ID, superseded.ID)
	assert.Equal(t, models.ConflictStatusResolved, superseded.Status)
	assert.Equal(t, models.StringList{"revalidated"}, superseded.ResolutionActions)

	draft := models.Schedule{ID: "sched-1", Status: models.ScheduleStatusDraft}
	_, err := lifecycle.Submit(draft, "admin-1", []models.Conflict{superseded, critical})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	third := tracker.Reconcile("sched-1", []models.Conflict{superseded, critical}, detectAt(45))
	assert.Empty(t, third.Created)
	assert.Empty(t, third.Resolved)
	require.Len(t, third.Unchanged, 1)
	assert.Equal(t, critical.ID, third.Unchanged[0].ID)
}

func TestReconcileRaisesIgnoredViolationThatTurnedCritical(t *testing.T) {
	tracker := newTestTracker()
	ignored := models.Conflict{ID: "c-ign", Fingerprint: "fp-cap", Severity: models.SeverityMedium, Status: models.ConflictStatusIgnored}

	quiet := tracker.Reconcile("sched-1", []models.Conflict{ignored}, []models.Conflict{
		{Fingerprint: "fp-cap", Severity: models.SeverityMedium},
	})
	assert.Empty(t, quiet.Created)

	raised := tracker.Reconcile("sched-1", []models.Conflict{ignored}, []models.Conflict{
		{Fingerprint: "fp-cap", Severity: models.SeverityCritical, BlocksApproval: true},
	})
	require.Len(t, raised.Created, 1)
	assert.True(t, raised.Created[0].BlocksApproval)
	assert.Empty(t, raised.Resolved)
}
