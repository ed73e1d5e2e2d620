package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

func TestNewGridDerivesPeriodBounds(t *testing.T) {
	grid, err := NewGrid(baseSettings())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, grid.Days())
	assert.Equal(t, []int{1, 2, 5, 6}, grid.AssignablePeriods())
	assert.Len(t, grid.Slots(), 30)
	assert.Len(t, grid.AssignableSlots(), 20)

	expected := map[int][2]string{
		1: {"07:00", "07:45"},
		2: {"07:45", "08:30"},
		3: {"08:30", "08:45"},
		4: {"08:45", "09:30"},
		5: {"09:30", "10:15"},
		6: {"10:15", "11:00"},
	}
	for period, bounds := range expected {
		start, end, ok := grid.Bounds(period)
		require.True(t, ok)
		assert.Equal(t, bounds[0], start, "period %d start", period)
		assert.Equal(t, bounds[1], end, "period %d end", period)
	}

	assert.False(t, grid.Assignable(1, 3))
	assert.False(t, grid.Assignable(6, 1))
	assert.False(t, grid.Contains(1, 7))
	assert.True(t, grid.IsBreak(4))
}

func TestNewGridRejectsBadClock(t *testing.T) {
	settings := baseSettings()
	settings.FirstPeriodStart = "7am"
	_, err := NewGrid(settings)
	assert.Error(t, err)

	settings = baseSettings()
	settings.FirstPeriodStart = "20:00"
	settings.PeriodDurationMinutes = 120
	_, err = NewGrid(settings)
	assert.Error(t, err)
}

func TestDayNames(t *testing.T) {
	assert.Equal(t, "MONDAY", DayName(1))
	assert.Equal(t, "", DayName(9))
	assert.Equal(t, 3, ParseDay("wednesday"))
	assert.Equal(t, 5, ParseDay("5"))
	assert.Equal(t, 0, ParseDay("someday"))
}

func TestValidateSettingsCollectsEveryViolation(t *testing.T) {
	settings := baseSettings()
	settings.WorkingDays = nil
	settings.PeriodDurationMinutes = 10
	settings.BreakPeriods = models.Periods{1, 2, 3, 5, 6}
	settings.FirstPeriodStart = "25:99"

	err := ValidateSettings(settings)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))

	fields := make(map[string]bool)
	for _, v := range vErr.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["settings.working_days"])
	assert.True(t, fields["settings.period_duration_minutes"])
	assert.True(t, fields["settings.first_period_start"])
	assert.True(t, fields["settings.break_periods"], "no assignable period left")
}

func TestValidateInputLoadRules(t *testing.T) {
	settings := baseSettings()
	dup := newLoad("load-1", "teacher-a", "math", "9A", 2)
	foreign := newLoad("load-2", "teacher-b", "art", "9B", 2)
	foreign.InstitutionID = "inst-2"
	sameTuple := newLoad("load-3", "teacher-a", "math", "9A", 2)
	badDistribution := newLoad("load-4", "teacher-c", "music", "9C", 3)
	badDistribution.IdealDistribution = models.DayAllocations{{Day: 1, LessonCount: 1}, {Day: 1, LessonCount: 1}, {Day: 6, LessonCount: 0}}

	err := ValidateInput([]models.TeachingLoad{dup, foreign, sameTuple, badDistribution, newLoad("load-1", "teacher-d", "pe", "9D", 1)}, settings)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))

	fields := make(map[string]bool)
	for _, v := range vErr.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["loads[1].institution_id"])
	assert.True(t, fields["loads[2]"])
	assert.True(t, fields["loads[3].ideal_distribution"])
	assert.True(t, fields["loads[3].ideal_distribution[1].day"])
	assert.True(t, fields["loads[3].ideal_distribution[2].day"])
	assert.True(t, fields["loads[4].id"])
}

func TestValidationSummaryScore(t *testing.T) {
	conflicts := []models.Conflict{
		{Severity: models.SeverityCritical, Status: models.ConflictStatusPending, BlocksApproval: true},
		{Severity: models.SeverityMedium, Status: models.ConflictStatusAcknowledged},
		{Severity: models.SeverityLow, Status: models.ConflictStatusEscalated},
		{Severity: models.SeverityHigh, Status: models.ConflictStatusResolved},
	}
	assert.Equal(t, 83, ValidationScore(conflicts))

	many := make([]models.Conflict, 12)
	for i := range many {
		many[i] = models.Conflict{Severity: models.SeverityHigh, Status: models.ConflictStatusPending}
	}
	assert.Equal(t, 0, ValidationScore(many))
}

func TestSummarize(t *testing.T) {
	loadID := "load-1"
	sessions := []models.Session{
		{ID: "s1", Day: 1, Period: 1, TeachingLoadID: &loadID, Status: models.SessionStatusScheduled},
		{ID: "s2", Day: 1, Period: 2, TeachingLoadID: &loadID, Status: models.SessionStatusCancelled},
		{ID: "s3", Day: 2, Period: 1},
	}
	conflicts := []models.Conflict{
		{Type: models.ConflictTypeTeacher, Severity: models.SeverityCritical, Status: models.ConflictStatusPending, BlocksApproval: true},
		{Type: models.ConflictTypeTime, Severity: models.SeverityMedium, Status: models.ConflictStatusIgnored},
	}
	loads := []models.TeachingLoad{newLoad(loadID, "teacher-a", "math", "9A", 2)}

	summary := Summarize("sched-1", sessions, conflicts, loads)
	assert.Equal(t, 3, summary.TotalSessions)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, summary.SessionsByDay)
	assert.Equal(t, 2, summary.SessionsByStatus[models.SessionStatusScheduled])
	assert.Equal(t, 1, summary.OpenConflicts)
	assert.Equal(t, 1, summary.BlockingConflicts)
	assert.Equal(t, 90, summary.ValidationScore)
	require.Len(t, summary.CoverageGaps, 1)
	assert.Equal(t, CoverageGap{TeachingLoadID: loadID, Required: 2, Scheduled: 1}, summary.CoverageGaps[0])
}
