package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

func session(id, teacher, class string, day, period int) models.Session {
	return models.Session{
		ID:         id,
		ScheduleID: "sched-1",
		TeacherID:  teacher,
		SubjectID:  "subject-" + id,
		ClassID:    class,
		Day:        day,
		Period:     period,
		Status:     models.SessionStatusScheduled,
		Source:     models.SessionSourceManual,
	}
}

func TestDetectForcedTeacherConflict(t *testing.T) {
	sessions := []models.Session{
		session("s1", "teacher-a", "9A", 1, 2),
		session("s2", "teacher-a", "9B", 1, 2),
	}

	conflicts := NewDetector().Detect(sessions, baseSettings())

	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictTypeTeacher, c.Type)
	assert.Equal(t, models.SeverityCritical, c.Severity)
	assert.True(t, c.BlocksApproval)
	assert.True(t, c.AutoResolvable)
	assert.Equal(t, models.StringList{"s1", "s2"}, c.SessionIDs)
	assert.Equal(t, models.ConflictStatusPending, c.Status)
	assert.Equal(t, 90, c.ImpactScore)
	assert.Equal(t, []string{"9A", "9B", "teacher-a"}, []string(c.Stakeholders))

	detail, ok := c.Details.Detail.(models.TeacherClash)
	require.True(t, ok)
	assert.Equal(t, "teacher-a", detail.TeacherID)
	assert.Equal(t, 1, detail.Day)
	assert.Equal(t, 2, detail.Period)
}

func TestDetectSubstituteTeacherCounts(t *testing.T) {
	sub := "teacher-b"
	first := session("s1", "teacher-a", "9A", 1, 1)
	first.SubstituteTeacherID = &sub
	first.Status = models.SessionStatusSubstituted
	second := session("s2", "teacher-b", "9B", 1, 1)

	conflicts := NewDetector().Detect([]models.Session{first, second}, baseSettings())
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictTypeTeacher, conflicts[0].Type)
}

func TestDetectIgnoresCancelledSessions(t *testing.T) {
	cancelled := session("s2", "teacher-a", "9B", 1, 2)
	cancelled.Status = models.SessionStatusCancelled

	conflicts := NewDetector().Detect([]models.Session{session("s1", "teacher-a", "9A", 1, 2), cancelled}, baseSettings())
	assert.Empty(t, conflicts)
}

func TestDetectClassAndRoomConflicts(t *testing.T) {
	first := session("s1", "teacher-a", "9A", 2, 1)
	second := session("s2", "teacher-b", "9A", 2, 1)
	first.RoomID = strRef("lab-1")
	second.RoomID = strRef("lab-1")

	conflicts := NewDetector().Detect([]models.Session{first, second}, baseSettings())
	require.Len(t, conflicts, 2)
	assert.Equal(t, models.ConflictTypeClass, conflicts[0].Type)
	assert.Equal(t, models.SeverityCritical, conflicts[0].Severity)
	assert.Equal(t, models.ConflictTypeRoom, conflicts[1].Type)
	assert.Equal(t, models.SeverityHigh, conflicts[1].Severity)
	assert.False(t, conflicts[1].BlocksApproval)
}

func TestDetectRoomConflictBlocksUnderStrictPolicy(t *testing.T) {
	settings := baseSettings()
	settings.Policy.RequireZeroHighSeverity = true
	first := session("s1", "teacher-a", "9A", 2, 1)
	second := session("s2", "teacher-b", "9B", 2, 1)
	first.RoomID = strRef("lab-1")
	second.RoomID = strRef("lab-1")

	conflicts := NewDetector().Detect([]models.Session{first, second}, settings)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].BlocksApproval)
}

func TestDetectGroupsThreeWayCollision(t *testing.T) {
	sessions := []models.Session{
		session("s1", "teacher-a", "9A", 1, 1),
		session("s2", "teacher-a", "9B", 1, 1),
		session("s3", "teacher-a", "9C", 1, 1),
	}
	conflicts := NewDetector().Detect(sessions, baseSettings())
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.StringList{"s1", "s2", "s3"}, conflicts[0].SessionIDs)
}

func TestDetectCapacity(t *testing.T) {
	cases := []struct {
		name      string
		headcount int
		severity  models.ConflictSeverity
		blocking  bool
	}{
		{name: "seventeen percent over is medium", headcount: 35, severity: models.SeverityMedium},
		{name: "twenty percent over is medium", headcount: 36, severity: models.SeverityMedium},
		{name: "above twenty percent is critical", headcount: 37, severity: models.SeverityCritical, blocking: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			detector := NewDetector(WithCatalog(Catalog{
				RoomCapacity:   map[string]int{"room-1": 30},
				ClassHeadcount: map[string]int{"9A": tc.headcount},
			}))
			s := session("s1", "teacher-a", "9A", 1, 1)
			s.RoomID = strRef("room-1")

			conflicts := detector.Detect([]models.Session{s}, baseSettings())
			require.Len(t, conflicts, 1)
			assert.Equal(t, models.ConflictTypeCapacity, conflicts[0].Type)
			assert.Equal(t, tc.severity, conflicts[0].Severity)
			assert.Equal(t, tc.blocking, conflicts[0].BlocksApproval)

			detail, ok := conflicts[0].Details.Detail.(models.CapacityOverage)
			require.True(t, ok)
			assert.Equal(t, 30, detail.Capacity)
			assert.Equal(t, tc.headcount, detail.Headcount)
		})
	}
}

func TestDetectCapacityThresholdIsConfigurable(t *testing.T) {
	detector := NewDetector(
		WithCapacityThreshold(10),
		WithCatalog(Catalog{RoomCapacity: map[string]int{"room-1": 30}, ClassHeadcount: map[string]int{"9A": 35}}),
	)
	s := session("s1", "teacher-a", "9A", 1, 1)
	s.RoomID = strRef("room-1")

	conflicts := detector.Detect([]models.Session{s}, baseSettings())
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.SeverityCritical, conflicts[0].Severity)
}

func TestDetectTimeMismatch(t *testing.T) {
	aligned := session("s1", "teacher-a", "9A", 1, 1)
	aligned.StartTime, aligned.EndTime = "07:00:00", "07:45"
	shifted := session("s2", "teacher-b", "9B", 1, 2)
	shifted.StartTime, shifted.EndTime = "08:00", "08:45"
	onBreak := session("s3", "teacher-c", "9C", 1, 3)

	conflicts := NewDetector().Detect([]models.Session{aligned, shifted, onBreak}, baseSettings())
	require.Len(t, conflicts, 2)

	reasons := map[string]string{}
	for _, c := range conflicts {
		assert.Equal(t, models.ConflictTypeTime, c.Type)
		assert.Equal(t, models.SeverityMedium, c.Severity)
		detail := c.Details.Detail.(models.TimeMismatch)
		reasons[detail.SessionID] = detail.Reason
		if detail.SessionID == "s2" {
			assert.Equal(t, "07:45", detail.ExpectedStart)
			assert.Equal(t, "08:30", detail.ExpectedEnd)
		}
	}
	assert.Equal(t, models.TimeReasonBoundary, reasons["s2"])
	assert.Equal(t, models.TimeReasonNotAssignable, reasons["s3"])
}

func TestDetectSuggestionsAreRanked(t *testing.T) {
	conflicts := NewDetector().Detect([]models.Session{
		session("s1", "teacher-a", "9A", 1, 2),
		session("s2", "teacher-a", "9B", 1, 2),
	}, baseSettings())
	require.Len(t, conflicts, 1)

	previous := -1
	for _, s := range conflicts[0].SuggestedSolutions {
		assert.GreaterOrEqual(t, s.Impact.Rank(), previous)
		previous = s.Impact.Rank()
	}
	assert.Equal(t, models.ActionRescheduleSession, conflicts[0].SuggestedSolutions[0].Action)
	assert.True(t, conflicts[0].SuggestedSolutions[0].Automatic)
}

func randomSessions(rng *rand.Rand, n int) []models.Session {
	sessions := make([]models.Session, 0, n)
	for i := 0; i < n; i++ {
		s := session(fmt.Sprintf("s%03d", i),
			fmt.Sprintf("teacher-%d", rng.Intn(4)),
			fmt.Sprintf("class-%d", rng.Intn(4)),
			1+rng.Intn(5), 1+rng.Intn(6))
		if rng.Intn(3) == 0 {
			s.RoomID = strRef(fmt.Sprintf("room-%d", rng.Intn(3)))
		}
		if rng.Intn(5) == 0 {
			s.StartTime, s.EndTime = "06:00", "06:45"
		}
		sessions = append(sessions, s)
	}
	return sessions
}

func TestDetectIsIdempotent(t *testing.T) {
	detector := NewDetector(WithCatalog(Catalog{
		RoomCapacity:   map[string]int{"room-0": 20, "room-1": 30},
		ClassHeadcount: map[string]int{"class-0": 25, "class-1": 40},
	}))
	for seed := int64(1); seed <= 20; seed++ {
		sessions := randomSessions(rand.New(rand.NewSource(seed)), 40)
		first := detector.Detect(sessions, baseSettings())
		second := detector.Detect(sessions, baseSettings())
		assert.Equal(t, first, second, "seed %d", seed)
	}
}

func TestDetectConcurrentMatchesDetect(t *testing.T) {
	detector := NewDetector(WithConcurrency(2))
	for seed := int64(1); seed <= 10; seed++ {
		sessions := randomSessions(rand.New(rand.NewSource(seed)), 60)
		expected := detector.Detect(sessions, baseSettings())
		actual, err := detector.DetectConcurrent(context.Background(), sessions, baseSettings())
		require.NoError(t, err)
		assert.Equal(t, expected, actual, "seed %d", seed)
	}
}

func TestDetectConcurrentHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDetector().DetectConcurrent(ctx, randomSessions(rand.New(rand.NewSource(1)), 10), baseSettings())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectAroundLimitsToChangedDay(t *testing.T) {
	sessions := []models.Session{
		session("s1", "teacher-a", "9A", 1, 2),
		session("s2", "teacher-a", "9B", 1, 2),
		session("s3", "teacher-b", "9C", 2, 1),
		session("s4", "teacher-b", "9D", 2, 1),
	}
	conflicts := NewDetector().DetectAround(sessions, sessions[2], baseSettings())
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.StringList{"s3", "s4"}, conflicts[0].SessionIDs)
}
