package scheduler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

func actionsOf(solutions []models.SuggestedSolution) []models.ResolutionAction {
	out := make([]models.ResolutionAction, 0, len(solutions))
	for _, s := range solutions {
		out = append(out, s.Action)
	}
	return out
}

func TestDefaultRulesRankByImpact(t *testing.T) {
	rules := DefaultRules()
	assert.Equal(t, []models.ResolutionAction{
		models.ActionRescheduleSession,
		models.ActionAssignSubstitute,
		models.ActionCombineSessions,
	}, actionsOf(rules.Suggest(models.ConflictTypeTeacher)))

	unknown := rules.Suggest(models.ConflictType("weather"))
	require.Len(t, unknown, 1)
	assert.Equal(t, models.ActionManualReview, unknown[0].Action)
	assert.False(t, unknown[0].Automatic)
}

func TestLoadRulesOverlaysDefaults(t *testing.T) {
	doc := `
impacts:
  combine_sessions: minimal
templates:
  capacity:
    - action: split_class
      description: Split into two groups
`
	rules, err := LoadRules(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []models.ResolutionAction{
		models.ActionRescheduleSession,
		models.ActionCombineSessions,
		models.ActionAssignSubstitute,
	}, actionsOf(rules.Suggest(models.ConflictTypeTeacher)))
	assert.Equal(t, []models.ResolutionAction{models.ActionSplitClass}, actionsOf(rules.Suggest(models.ConflictTypeCapacity)))
	assert.Len(t, rules.Suggest(models.ConflictTypeRoom), 3)
}

func TestLoadRulesRejectsBadDocuments(t *testing.T) {
	_, err := LoadRules(strings.NewReader("impacts:\n  change_room: catastrophic\n"))
	assert.Error(t, err)

	_, err = LoadRules(strings.NewReader("templates:\n  room:\n    - description: missing action\n"))
	assert.Error(t, err)

	_, err = LoadRules(strings.NewReader("templates:\n  rooom:\n    - action: change_room\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rooom")

	rules, err := LoadRules(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestImpactScore(t *testing.T) {
	cases := []struct {
		conflict models.Conflict
		want     int
	}{
		{models.Conflict{Severity: models.SeverityCritical, Type: models.ConflictTypeTeacher, BlocksApproval: true}, 90},
		{models.Conflict{Severity: models.SeverityMedium, Type: models.ConflictTypeCapacity}, 35},
		{models.Conflict{Severity: models.SeverityLow, Type: models.ConflictTypeTime}, 20},
		{models.Conflict{Severity: "unknown", Type: models.ConflictTypeRoom}, 25},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ImpactScore(tc.conflict))
	}
}
