package scheduler

import (
	"sort"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// AutoOutcome reports what an auto-resolution attempt did.
type AutoOutcome struct {
	Applied  bool                    `json:"applied"`
	Action   models.ResolutionAction `json:"action,omitempty"`
	Changed  []models.Session        `json:"changed,omitempty"`
	Sessions []models.Session        `json:"-"`
	Reason   string                  `json:"reason,omitempty"`
}

// AutoResolver applies automatic remedies and keeps a change only when a
// fresh detection pass proves it removed the conflict without adding a new one.
type AutoResolver struct {
	detector      *Detector
	generatedOnly bool
}

// NewAutoResolver builds a resolver that verifies with the given detector.
func NewAutoResolver(detector *Detector) *AutoResolver {
	if detector == nil {
		detector = NewDetector()
	}
	return &AutoResolver{detector: detector}
}

// GeneratedOnly restricts remedies to generated sessions. Manual sessions
// stay where the user put them and their conflicts are left for review.
func (r *AutoResolver) GeneratedOnly() *AutoResolver {
	r.generatedOnly = true
	return r
}

// Resolve tries the conflict's automatic suggestions in rank order. The
// input sessions are never modified; on success Sessions holds the updated
// set and Changed the moved sessions.
func (r *AutoResolver) Resolve(conflict models.Conflict, sessions []models.Session, settings models.GenerationSettings) (AutoOutcome, error) {
	if !conflict.Open() {
		return AutoOutcome{}, &TransitionError{Entity: "conflict", From: string(conflict.Status), To: string(models.ConflictStatusResolved), Reason: "conflict is closed"}
	}
	var actions []models.ResolutionAction
	for _, s := range conflict.SuggestedSolutions {
		if s.Automatic && IsAutomatic(s.Action) {
			actions = append(actions, s.Action)
		}
	}
	if !conflict.AutoResolvable || len(actions) == 0 {
		return AutoOutcome{}, ErrNotAutoResolvable
	}
	grid, err := NewGrid(settings)
	if err != nil {
		return AutoOutcome{}, &ValidationError{Violations: []Violation{{Field: "settings", Message: err.Error()}}}
	}

	for _, action := range actions {
		for _, change := range r.proposals(action, conflict, sessions, grid) {
			if updated, ok := r.verify(conflict, sessions, change, settings); ok {
				return AutoOutcome{Applied: true, Action: action, Changed: []models.Session{change}, Sessions: updated}, nil
			}
		}
	}
	return AutoOutcome{Reason: "no automatic remedy removed the conflict without introducing a new one"}, nil
}

// proposals lists candidate replacements for one session, cheapest first.
func (r *AutoResolver) proposals(action models.ResolutionAction, conflict models.Conflict, sessions []models.Session, grid *Grid) []models.Session {
	involved := r.involved(conflict, sessions)
	var out []models.Session
	switch action {
	case models.ActionRescheduleSession:
		for _, s := range involved {
			occ := occupancyOf(without(sessions, s.ID))
			for _, slot := range grid.AssignableSlots() {
				if slot.Day == s.Day && slot.Period == s.Period {
					continue
				}
				if !occ.free(s.EffectiveTeacherID(), s.ClassID, s.Room(), slot.Day, slot.Period) {
					continue
				}
				moved := s
				moved.Day, moved.Period = slot.Day, slot.Period
				grid.Stamp(&moved)
				out = append(out, moved)
			}
		}
	case models.ActionChangeRoom:
		catalog := r.detector.Catalog()
		rooms := make([]string, 0, len(catalog.RoomCapacity))
		for id := range catalog.RoomCapacity {
			rooms = append(rooms, id)
		}
		sort.Slice(rooms, func(i, j int) bool {
			a, b := catalog.RoomCapacity[rooms[i]], catalog.RoomCapacity[rooms[j]]
			if a != b {
				return a < b
			}
			return rooms[i] < rooms[j]
		})
		for _, s := range involved {
			occ := occupancyOf(without(sessions, s.ID))
			headcount, known := catalog.ClassHeadcount[s.ClassID]
			for _, room := range rooms {
				if room == s.Room() {
					continue
				}
				if known && catalog.RoomCapacity[room] < headcount {
					continue
				}
				if !occ.free(s.EffectiveTeacherID(), s.ClassID, room, s.Day, s.Period) {
					continue
				}
				moved := s
				id := room
				moved.RoomID = &id
				out = append(out, moved)
			}
		}
	case models.ActionAdjustTime:
		for _, s := range involved {
			if !grid.Assignable(s.Day, s.Period) {
				continue
			}
			stamped := s
			grid.Stamp(&stamped)
			if stamped.StartTime != s.StartTime || stamped.EndTime != s.EndTime {
				out = append(out, stamped)
			}
		}
	}
	return out
}

// verify applies the change and re-detects on the touched days.
func (r *AutoResolver) verify(conflict models.Conflict, sessions []models.Session, change models.Session, settings models.GenerationSettings) ([]models.Session, bool) {
	updated := make([]models.Session, len(sessions))
	var original models.Session
	for i, s := range sessions {
		if s.ID == change.ID {
			original = s
			updated[i] = change
			continue
		}
		updated[i] = s
	}

	days := []int{original.Day, change.Day}
	before := make(map[string]bool)
	for _, c := range r.detector.Detect(sessionsOnDays(sessions, days...), settings) {
		before[c.Fingerprint] = true
	}
	for _, c := range r.detector.Detect(sessionsOnDays(updated, days...), settings) {
		if c.Fingerprint == conflict.Fingerprint || !before[c.Fingerprint] {
			return nil, false
		}
	}
	return updated, true
}

// involved orders the conflict's movable sessions so generated ones move first.
func (r *AutoResolver) involved(conflict models.Conflict, sessions []models.Session) []models.Session {
	wanted := make(map[string]bool, len(conflict.SessionIDs))
	for _, id := range conflict.SessionIDs {
		wanted[id] = true
	}
	var out []models.Session
	for _, s := range sessions {
		if !wanted[s.ID] {
			continue
		}
		if r.generatedOnly && s.Source != models.SessionSourceGenerated {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi := out[i].Source == models.SessionSourceGenerated
		gj := out[j].Source == models.SessionSourceGenerated
		if gi != gj {
			return gi
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func without(sessions []models.Session, id string) []models.Session {
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
