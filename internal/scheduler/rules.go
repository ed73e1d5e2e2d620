package scheduler

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// RuleTable maps conflict types to ordered remediation templates and actions to
// their static impact tier. It can be replaced per institution.
type RuleTable struct {
	Impacts   map[models.ResolutionAction]models.ImpactTier         `yaml:"impacts"`
	Templates map[models.ConflictType][]models.SuggestedSolution `yaml:"templates"`
}

// automaticActions are the remedies the auto resolver knows how to apply.
var automaticActions = map[models.ResolutionAction]bool{
	models.ActionRescheduleSession: true,
	models.ActionChangeRoom:        true,
	models.ActionAdjustTime:        true,
}

// IsAutomatic reports whether the action can be applied without operator judgment.
func IsAutomatic(action models.ResolutionAction) bool {
	return automaticActions[action]
}

// DefaultRules returns the built-in remediation tables.
func DefaultRules() *RuleTable {
	return &RuleTable{
		Impacts: map[models.ResolutionAction]models.ImpactTier{
			models.ActionRescheduleSession: models.ImpactMinimal,
			models.ActionChangeRoom:        models.ImpactMinimal,
			models.ActionAdjustTime:        models.ImpactMinimal,
			models.ActionAssignSubstitute:  models.ImpactModerate,
			models.ActionVirtualSession:    models.ImpactModerate,
			models.ActionMoveToOtherDay:    models.ImpactModerate,
			models.ActionCombineSessions:   models.ImpactSignificant,
			models.ActionSplitClass:        models.ImpactSignificant,
			models.ActionManualReview:      models.ImpactSignificant,
		},
		Templates: map[models.ConflictType][]models.SuggestedSolution{
			models.ConflictTypeTeacher: {
				{Action: models.ActionRescheduleSession, Description: "Move one of the conflicting sessions to a free slot"},
				{Action: models.ActionAssignSubstitute, Description: "Assign a qualified substitute teacher to one session"},
				{Action: models.ActionCombineSessions, Description: "Combine similar sessions into one lesson"},
			},
			models.ConflictTypeRoom: {
				{Action: models.ActionChangeRoom, Description: "Move one session to an available room"},
				{Action: models.ActionRescheduleSession, Description: "Move one session to a slot where the room is free"},
				{Action: models.ActionVirtualSession, Description: "Conduct one session online"},
			},
			models.ConflictTypeClass: {
				{Action: models.ActionRescheduleSession, Description: "Move one of the class lessons to a free slot"},
				{Action: models.ActionCombineSessions, Description: "Merge the overlapping lessons"},
			},
			models.ConflictTypeCapacity: {
				{Action: models.ActionChangeRoom, Description: "Move the session to a room with enough capacity"},
				{Action: models.ActionSplitClass, Description: "Divide the class into smaller groups"},
			},
			models.ConflictTypeTime: {
				{Action: models.ActionAdjustTime, Description: "Align start and end time with the period grid"},
				{Action: models.ActionRescheduleSession, Description: "Move the session to an assignable period"},
				{Action: models.ActionMoveToOtherDay, Description: "Schedule the session on another working day"},
			},
		},
	}
}

// LoadRules decodes a YAML rule table and overlays it on the defaults. Types
// and actions missing from the document keep their default entries.
func LoadRules(r io.Reader) (*RuleTable, error) {
	var doc RuleTable
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rule table: %w", err)
	}

	rules := DefaultRules()
	for action, tier := range doc.Impacts {
		if tier.Rank() > models.ImpactSignificant.Rank() {
			return nil, fmt.Errorf("action %s: unknown impact tier %q", action, tier)
		}
		rules.Impacts[action] = tier
	}
	for kind, templates := range doc.Templates {
		if !kind.Known() {
			return nil, fmt.Errorf("templates: unknown conflict type %q", kind)
		}
		for i, tpl := range templates {
			if tpl.Action == "" {
				return nil, fmt.Errorf("%s template %d: action is required", kind, i)
			}
		}
		rules.Templates[kind] = templates
	}
	return rules, nil
}

// LoadRulesFile reads a YAML rule table from disk.
func LoadRulesFile(path string) (*RuleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule table: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// Impact returns the static tier of an action.
func (r *RuleTable) Impact(action models.ResolutionAction) models.ImpactTier {
	if tier, ok := r.Impacts[action]; ok {
		return tier
	}
	return models.ImpactSignificant
}

// Suggest returns the remediation templates for a conflict type ranked from
// least to most disruptive. Ties keep template order.
func (r *RuleTable) Suggest(kind models.ConflictType) []models.SuggestedSolution {
	templates := r.Templates[kind]
	if len(templates) == 0 {
		templates = []models.SuggestedSolution{{Action: models.ActionManualReview, Description: "This conflict requires manual intervention"}}
	}
	out := make([]models.SuggestedSolution, len(templates))
	for i, tpl := range templates {
		tpl.Impact = r.Impact(tpl.Action)
		tpl.Automatic = IsAutomatic(tpl.Action)
		out[i] = tpl
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impact.Rank() < out[j].Impact.Rank()
	})
	return out
}

var severityWeights = map[models.ConflictSeverity]int{
	models.SeverityCritical: 40,
	models.SeverityHigh:     30,
	models.SeverityMedium:   20,
	models.SeverityLow:      10,
}

var typeWeights = map[models.ConflictType]int{
	models.ConflictTypeTeacher:  30,
	models.ConflictTypeClass:    25,
	models.ConflictTypeRoom:     20,
	models.ConflictTypeCapacity: 15,
	models.ConflictTypeTime:     10,
}

// ImpactScore rates a conflict from 0 to 100 for triage ordering.
func ImpactScore(c models.Conflict) int {
	score, ok := severityWeights[c.Severity]
	if !ok {
		score = 5
	}
	score += typeWeights[c.Type]
	if c.BlocksApproval {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}
