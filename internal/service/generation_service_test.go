package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type generationFixture struct {
	service   *GenerationService
	schedules *scheduleStoreStub
	sessions  *sessionStoreStub
	conflicts *conflictStoreStub
	audit     *auditStub
	publisher *publisherStub
}

func newGenerationFixture(t *testing.T, tx txProvider, schedule models.Schedule, settings *models.GenerationSettings, sessions ...models.Session) *generationFixture {
	t.Helper()
	settingsStore := newSettingsStore()
	if settings != nil {
		settingsStore = newSettingsStore(*settings)
	}
	fx := &generationFixture{
		schedules: newScheduleStore(schedule),
		sessions:  newSessionStore(sessions...),
		conflicts: newConflictStore(),
		audit:     &auditStub{},
		publisher: &publisherStub{},
	}
	fx.service = NewGenerationService(GenerationServiceDeps{
		Schedules: fx.schedules,
		Sessions:  fx.sessions,
		Conflicts: fx.conflicts,
		Loads: &loadStoreStub{items: []models.TeachingLoad{
			newLoad("load-1", "teacher-1", "math", "class-1", 3),
			newLoad("load-2", "teacher-2", "physics", "class-1", 2),
		}},
		Settings:  settingsStore,
		Resources: &catalogStub{},
		Tx:        tx,
		Events:    NewEventService(fx.publisher, zap.NewNop()),
		Audit:     fx.audit,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return time.Date(2026, 7, 13, 8, 0, 0, 0, time.UTC) },
	})
	return fx
}

func TestGenerationServicePersistsGeneratedSessions(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	settings := baseSettings()
	fixed := manualSession("m1", "teacher-1", "class-1", 1, 1)
	fixed.TeachingLoadID = strRef("load-1")
	stale := manualSession("old-gen", "teacher-2", "class-1", 5, 6)
	stale.Source = models.SessionSourceGenerated
	fx := newGenerationFixture(t, tx, draftSchedule("sched-1"), &settings, fixed, stale)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, resp.DryRun)
	assert.Empty(t, resp.Unplaced)
	assert.Empty(t, resp.Conflicts)
	assert.Equal(t, 5, resp.Stats.RequiredHours)
	assert.Equal(t, 5, resp.Stats.PlacedHours)
	assert.Equal(t, 100.0, resp.Stats.SuccessRate)

	stored := fx.sessions.all()
	assert.Len(t, stored, 5)
	_, staleLeft := fx.sessions.get("old-gen")
	assert.False(t, staleLeft)
	kept, ok := fx.sessions.get("m1")
	require.True(t, ok)
	assert.Equal(t, 1, kept.Period)

	generated := 0
	for _, s := range stored {
		assert.Equal(t, "sched-1", s.ScheduleID)
		if s.Source == models.SessionSourceGenerated {
			generated++
			assert.False(t, settings.IsBreak(s.Period), "session %s placed on a break", s.ID)
			assert.NotEmpty(t, s.StartTime)
		}
	}
	assert.Equal(t, 4, generated)

	var meta map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fx.schedules.get("sched-1").Meta, &meta))
	assert.Contains(t, meta, "generation")
	assert.Equal(t, []string{models.AuditActionScheduleGenerate}, fx.audit.actions())
}

func TestGenerationServiceDryRunPersistsNothing(t *testing.T) {
	settings := baseSettings()
	clashA := manualSession("m1", "teacher-9", "class-8", 2, 2)
	clashB := manualSession("m2", "teacher-9", "class-9", 2, 2)
	stale := manualSession("old-gen", "teacher-2", "class-1", 5, 6)
	stale.Source = models.SessionSourceGenerated
	fx := newGenerationFixture(t, noopTxProvider{}, draftSchedule("sched-1"), &settings, clashA, clashB, stale)

	resp, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{DryRun: true}, "admin")
	require.NoError(t, err)

	assert.True(t, resp.DryRun)
	assert.Len(t, resp.Sessions, 7)
	require.NotEmpty(t, resp.Conflicts)
	found := false
	for _, c := range resp.Conflicts {
		assert.Equal(t, "sched-1", c.ScheduleID)
		if c.Type == models.ConflictTypeTeacher {
			found = true
			assert.ElementsMatch(t, []string{"m1", "m2"}, []string(c.SessionIDs))
		}
	}
	assert.True(t, found)

	_, staleLeft := fx.sessions.get("old-gen")
	assert.True(t, staleLeft)
	assert.Len(t, fx.sessions.all(), 3)
	assert.Empty(t, fx.conflicts.all())
	assert.Empty(t, fx.audit.actions())
}

func TestGenerationServiceRejectsActiveSchedule(t *testing.T) {
	settings := baseSettings()
	active := draftSchedule("sched-1")
	active.Status = models.ScheduleStatusActive
	existing := manualSession("m1", "teacher-1", "class-1", 1, 1)
	fx := newGenerationFixture(t, noopTxProvider{}, active, &settings, existing)

	_, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, errorCode(t, err))
	assert.Len(t, fx.sessions.all(), 1)
}

func TestGenerationServiceRequiresSettings(t *testing.T) {
	fx := newGenerationFixture(t, noopTxProvider{}, draftSchedule("sched-1"), nil)

	_, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, errorCode(t, err))
}

func TestGenerationServiceRejectsInvalidLoads(t *testing.T) {
	settings := baseSettings()
	fx := newGenerationFixture(t, noopTxProvider{}, draftSchedule("sched-1"), &settings)
	fx.service.loads = &loadStoreStub{items: []models.TeachingLoad{
		newLoad("load-1", "teacher-1", "math", "class-1", 0),
	}}

	_, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
	appErr := appErrors.FromError(err)
	assert.NotNil(t, appErr.Details)
}

func TestGenerationServiceStoresDetectedConflicts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	settings := baseSettings()
	clashA := manualSession("m1", "teacher-9", "class-8", 2, 2)
	clashB := manualSession("m2", "teacher-9", "class-9", 2, 2)
	fx := newGenerationFixture(t, tx, draftSchedule("sched-1"), &settings, clashA, clashB)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotEmpty(t, resp.Conflicts)
	stored := fx.conflicts.all()
	assert.Len(t, stored, len(resp.Conflicts))
	for _, c := range stored {
		assert.Equal(t, "sched-1", c.ScheduleID)
		assert.Equal(t, models.ConflictStatusPending, c.Status)
	}
	assert.Contains(t, fx.publisher.types(), EventConflictsDetected)
}

func TestGenerationServiceAutomaticStrategyKeepsManualSessions(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	settings := baseSettings()
	settings.Preferences.ConflictResolutionStrategy = models.ConflictStrategyAutomatic
	fx := newGenerationFixture(t, tx, draftSchedule("sched-1"), &settings,
		manualSession("m1", "teacher-1", "class-1", 1, 1),
		manualSession("m2", "teacher-1", "class-2", 1, 1),
	)
	fx.service.loads = &loadStoreStub{}

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := fx.service.Generate(context.Background(), "sched-1", dto.GenerateRequest{}, "admin")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Zero(t, resp.AutoResolved)
	assert.NotEmpty(t, resp.Warnings)
	for _, id := range []string{"m1", "m2"} {
		stored, ok := fx.sessions.get(id)
		require.True(t, ok)
		assert.Equal(t, 1, stored.Day, id)
		assert.Equal(t, 1, stored.Period, id)
	}

	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, models.ConflictTypeTeacher, resp.Conflicts[0].Type)
	assert.ElementsMatch(t, []string{"m1", "m2"}, []string(resp.Conflicts[0].SessionIDs))
	stored := fx.conflicts.all()
	require.Len(t, stored, 1)
	assert.Equal(t, models.ConflictStatusPending, stored[0].Status)
}
