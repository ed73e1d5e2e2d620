package scheduler

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable/internal/models"
)

const (
	DefaultMaxSwapAttempts     = 200
	DefaultGapRepairIterations = 12
	DefaultTeacherWeeklyLimit  = 25
	DefaultMorningCutoff       = 4
	defaultBacktrackBudget     = 500
)

// Warning codes attached to a generation result.
const (
	WarningHardCollision   = "hard_collision"
	WarningTeacherOverload = "teacher_overload"
	WarningRelaxed         = "preferences_relaxed"
)

// Options tunes the generator. Zero values fall back to defaults.
type Options struct {
	MaxSwapAttempts     int
	GapRepairIterations int
	TeacherWeeklyLimit  int
	MorningCutoff       int
	BacktrackBudget     int
	NewID               func() string
}

func (o Options) withDefaults() Options {
	if o.MaxSwapAttempts <= 0 {
		o.MaxSwapAttempts = DefaultMaxSwapAttempts
	}
	if o.GapRepairIterations <= 0 {
		o.GapRepairIterations = DefaultGapRepairIterations
	}
	if o.TeacherWeeklyLimit <= 0 {
		o.TeacherWeeklyLimit = DefaultTeacherWeeklyLimit
	}
	if o.MorningCutoff <= 0 {
		o.MorningCutoff = DefaultMorningCutoff
	}
	if o.BacktrackBudget <= 0 {
		o.BacktrackBudget = defaultBacktrackBudget
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// UnplacedLoad records the hours of a load that found no legal slot.
type UnplacedLoad struct {
	TeachingLoadID string `json:"teaching_load_id"`
	TeacherID      string `json:"teacher_id"`
	SubjectID      string `json:"subject_id"`
	ClassID        string `json:"class_id"`
	RemainingHours int    `json:"remaining_hours"`
	Reason         string `json:"reason"`
}

// Warning is a non-fatal observation about the merged timetable.
type Warning struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	SessionIDs []string `json:"session_ids,omitempty"`
}

// Stats summarises one generation pass.
type Stats struct {
	RequiredHours int     `json:"required_hours"`
	PlacedHours   int     `json:"placed_hours"`
	SuccessRate   float64 `json:"success_rate"`
	GapPenalty    int     `json:"gap_penalty"`
	LoadPenalty   int     `json:"load_penalty"`
	Swaps         int     `json:"swaps"`
	GapRepairs    int     `json:"gap_repairs"`
	Backtracks    int     `json:"backtracks"`
	Score         float64 `json:"score"`
}

// Result is the full outcome of Generate. Sessions is the merged set of
// existing and generated sessions; Generated holds only the new ones.
type Result struct {
	Sessions  []models.Session `json:"sessions"`
	Generated []models.Session `json:"generated"`
	Unplaced  []UnplacedLoad   `json:"unplaced"`
	Warnings  []Warning        `json:"warnings"`
	Stats     Stats            `json:"stats"`
}

// Generator places teaching loads into the weekly grid.
type Generator struct {
	opts Options
}

// NewGenerator creates a generator with the given tuning.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts.withDefaults()}
}

// Generate validates the input, places every load it can and merges the
// result with the existing sessions, which are never moved. Hours that cannot
// be placed are reported in Unplaced; no slot is ever double booked by the
// generator itself. The only error is a *ValidationError.
func (g *Generator) Generate(loads []models.TeachingLoad, settings models.GenerationSettings, existing []models.Session) (*Result, error) {
	if err := ValidateInput(loads, settings); err != nil {
		return nil, err
	}
	grid, err := NewGrid(settings)
	if err != nil {
		return nil, &ValidationError{Violations: []Violation{{Field: "settings", Message: err.Error()}}}
	}

	prefs := settings.Preferences.WithDefaults()
	fixed := make([]models.Session, len(existing))
	copy(fixed, existing)

	prefilled := make(map[string]int)
	for _, s := range fixed {
		if s.Occupies() && s.LoadID() != "" {
			prefilled[s.LoadID()]++
		}
	}

	p := newPlacement(grid, prefs, g.opts, fixed)
	result := &Result{}
	unplacedHours := 0

	for _, load := range sortLoads(loads) {
		p.loads[load.ID] = load
		result.Stats.RequiredHours += load.WeeklyHours
		required := load.WeeklyHours - prefilled[load.ID]
		if required <= 0 {
			continue
		}

		placed, backtracks := p.placeStrict(load, required)
		result.Stats.Backtracks += backtracks
		remaining := required - placed
		if remaining > 0 {
			relaxed := p.placeRelaxed(load, remaining)
			if relaxed > 0 {
				result.Warnings = append(result.Warnings, Warning{
					Code:    WarningRelaxed,
					Message: fmt.Sprintf("load %s: %d hour(s) placed without soft preferences", load.ID, relaxed),
				})
			}
			remaining -= relaxed
		}
		if remaining > 0 {
			unplacedHours += remaining
			result.Unplaced = append(result.Unplaced, UnplacedLoad{
				TeachingLoadID: load.ID,
				TeacherID:      load.TeacherID,
				SubjectID:      load.SubjectID,
				ClassID:        load.ClassID,
				RemainingHours: remaining,
				Reason:         "no free slot where teacher, class and room are all available",
			})
		}
	}

	if prefs.BalanceDailyLoad {
		result.Stats.Swaps = p.balance()
	}
	if prefs.MinimizeGaps {
		result.Stats.GapRepairs = p.repairGaps()
	}

	for _, s := range p.generated {
		grid.Stamp(s)
		result.Generated = append(result.Generated, *s)
	}
	sortSessions(result.Generated)

	result.Sessions = append(fixed, result.Generated...)
	sortSessions(result.Sessions)

	for _, col := range hardCollisions(result.Sessions) {
		result.Warnings = append(result.Warnings, Warning{
			Code:       WarningHardCollision,
			Message:    fmt.Sprintf("%s %s is double booked on %s period %d", col.Type, col.Resource, dayLabel(col.Day), col.Period),
			SessionIDs: col.SessionIDs,
		})
	}

	loadPenalty := 0
	for _, teacher := range sortedKeys(p.occ.teacherW) {
		hours := p.occ.teacherW[teacher]
		if hours > g.opts.TeacherWeeklyLimit {
			loadPenalty += hours - g.opts.TeacherWeeklyLimit
			result.Warnings = append(result.Warnings, Warning{
				Code:    WarningTeacherOverload,
				Message: fmt.Sprintf("teacher %s has %d weekly hours, limit is %d", teacher, hours, g.opts.TeacherWeeklyLimit),
			})
		}
	}

	stats := &result.Stats
	stats.PlacedHours = stats.RequiredHours - unplacedHours
	stats.GapPenalty = GapPenalty(grid, result.Sessions)
	stats.LoadPenalty = loadPenalty
	unplacedRatio := 0.0
	if stats.RequiredHours > 0 {
		stats.SuccessRate = round2(float64(stats.PlacedHours) / float64(stats.RequiredHours) * 100)
		unplacedRatio = float64(unplacedHours) / float64(stats.RequiredHours)
	} else {
		stats.SuccessRate = 100
	}
	stats.Score = round2(math.Max(0, 100-(unplacedRatio*100+float64(stats.GapPenalty)*2+float64(stats.LoadPenalty)*5)))

	return result, nil
}

// GapPenalty counts the free assignable periods lying between a class's
// first and last lesson of each day.
func GapPenalty(grid *Grid, sessions []models.Session) int {
	periods := make(map[string]map[int][]int)
	for _, s := range sessions {
		if !s.Occupies() {
			continue
		}
		if periods[s.ClassID] == nil {
			periods[s.ClassID] = make(map[int][]int)
		}
		periods[s.ClassID][s.Day] = append(periods[s.ClassID][s.Day], s.Period)
	}

	penalty := 0
	for _, days := range periods {
		for day, list := range days {
			if len(list) < 2 {
				continue
			}
			sort.Ints(list)
			taken := make(map[int]bool, len(list))
			for _, period := range list {
				taken[period] = true
			}
			for period := list[0] + 1; period < list[len(list)-1]; period++ {
				if !taken[period] && grid.Assignable(day, period) {
					penalty++
				}
			}
		}
	}
	return penalty
}

func sortLoads(loads []models.TeachingLoad) []models.TeachingLoad {
	ordered := make([]models.TeachingLoad, len(loads))
	copy(ordered, loads)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		if a.WeeklyHours != b.WeeklyHours {
			return a.WeeklyHours > b.WeeklyHours
		}
		return a.ID < b.ID
	})
	return ordered
}

func sortSessions(sessions []models.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		return a.ID < b.ID
	})
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
