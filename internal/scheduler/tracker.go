package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// SystemActor is recorded on transitions performed without a human.
const SystemActor = "system"

var conflictTransitions = map[models.ConflictStatus]map[models.ConflictStatus]bool{
	models.ConflictStatusPending: {
		models.ConflictStatusAcknowledged: true,
		models.ConflictStatusEscalated:    true,
		models.ConflictStatusResolved:     true,
		models.ConflictStatusIgnored:      true,
	},
	models.ConflictStatusAcknowledged: {
		models.ConflictStatusInProgress: true,
		models.ConflictStatusEscalated:  true,
		models.ConflictStatusResolved:   true,
		models.ConflictStatusIgnored:    true,
	},
	models.ConflictStatusInProgress: {
		models.ConflictStatusEscalated: true,
		models.ConflictStatusResolved:  true,
	},
	models.ConflictStatusEscalated: {
		models.ConflictStatusInProgress: true,
		models.ConflictStatusResolved:   true,
	},
}

// Resolution carries what an operator did to close a conflict.
type Resolution struct {
	Resolver string                    `json:"resolver"`
	Notes    string                    `json:"notes"`
	Actions  []models.ResolutionAction `json:"actions"`
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIDGenerator overrides conflict id generation.
func WithIDGenerator(fn func() string) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// Tracker owns the conflict resolution state machine. Every method returns an
// updated copy and leaves its input untouched when it fails.
type Tracker struct {
	now   func() time.Time
	newID func() string
}

// NewTracker builds a tracker using the wall clock and random ids.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// CanTransitionConflict reports whether the state machine permits the move.
func CanTransitionConflict(from, to models.ConflictStatus) bool {
	if from == "" {
		from = models.ConflictStatusPending
	}
	return conflictTransitions[from][to]
}

// Acknowledge marks a pending conflict as seen.
func (t *Tracker) Acknowledge(c models.Conflict, actor, note string) (models.Conflict, error) {
	return t.transition(c, models.ConflictStatusAcknowledged, actor, note)
}

// Start marks work on the conflict as begun.
func (t *Tracker) Start(c models.Conflict, actor, note string) (models.Conflict, error) {
	return t.transition(c, models.ConflictStatusInProgress, actor, note)
}

// Escalate hands the conflict to a higher authority.
func (t *Tracker) Escalate(c models.Conflict, actor, note string) (models.Conflict, error) {
	return t.transition(c, models.ConflictStatusEscalated, actor, note)
}

// Ignore closes a conflict without remediation. Critical and blocking
// conflicts cannot be ignored.
func (t *Tracker) Ignore(c models.Conflict, actor, note string) (models.Conflict, error) {
	if c.Severity == models.SeverityCritical || c.BlocksApproval {
		return c, &TransitionError{
			Entity: "conflict",
			From:   string(statusOf(c)),
			To:     string(models.ConflictStatusIgnored),
			Reason: "critical or blocking conflicts must be resolved",
		}
	}
	return t.transition(c, models.ConflictStatusIgnored, actor, note)
}

// Resolve closes the conflict with a resolver and at least one action.
func (t *Tracker) Resolve(c models.Conflict, res Resolution) (models.Conflict, error) {
	var v violations
	if strings.TrimSpace(res.Resolver) == "" {
		v.add("resolver", "is required")
	}
	if len(res.Actions) == 0 {
		v.add("actions", "at least one resolution action is required")
	}
	for i, action := range res.Actions {
		if strings.TrimSpace(string(action)) == "" {
			v.add(fmt.Sprintf("actions[%d]", i), "is required")
		}
	}
	if err := v.err(); err != nil {
		return c, err
	}

	next, err := t.transition(c, models.ConflictStatusResolved, res.Resolver, res.Notes)
	if err != nil {
		return c, err
	}
	resolver := res.Resolver
	resolvedAt := next.UpdatedAt
	next.ResolvedBy = &resolver
	next.ResolvedAt = &resolvedAt
	if res.Notes != "" {
		notes := res.Notes
		next.ResolutionNotes = &notes
	}
	actions := make(models.StringList, 0, len(res.Actions))
	for _, action := range res.Actions {
		actions = append(actions, string(action))
	}
	next.ResolutionActions = actions
	return next, nil
}

func statusOf(c models.Conflict) models.ConflictStatus {
	if c.Status == "" {
		return models.ConflictStatusPending
	}
	return c.Status
}

func (t *Tracker) transition(c models.Conflict, to models.ConflictStatus, actor, note string) (models.Conflict, error) {
	from := statusOf(c)
	if from.Closed() {
		return c, &TransitionError{Entity: "conflict", From: string(from), To: string(to), Reason: "conflict is closed"}
	}
	if !CanTransitionConflict(from, to) {
		return c, &TransitionError{Entity: "conflict", From: string(from), To: string(to)}
	}
	if strings.TrimSpace(actor) == "" {
		actor = SystemActor
	}

	now := t.now()
	next := c
	next.History = append(append(models.ConflictHistory(nil), c.History...), models.ConflictHistoryEntry{
		From:  from,
		To:    to,
		Actor: actor,
		At:    now,
		Note:  note,
	})
	next.Status = to
	next.UpdatedAt = now
	return next, nil
}

// Register gives a freshly detected conflict its identity.
func (t *Tracker) Register(scheduleID string, c models.Conflict) models.Conflict {
	now := t.now()
	c.ID = t.newID()
	c.ScheduleID = scheduleID
	c.Status = models.ConflictStatusPending
	c.DetectedAt = now
	c.UpdatedAt = now
	c.History = models.ConflictHistory{{To: models.ConflictStatusPending, Actor: SystemActor, At: now, Note: "detected"}}
	return c
}

// ReconcileResult partitions the outcome of merging a new detection pass
// into the stored conflict records.
type ReconcileResult struct {
	Created   []models.Conflict `json:"created"`
	Resolved  []models.Conflict `json:"resolved"`
	Unchanged []models.Conflict `json:"unchanged"`
}

// Reconcile maps detected conflicts onto stored records by fingerprint. New
// violations become pending records, open records still detected unchanged are
// kept, and open records no longer detected are resolved by the system. An open
// record whose severity, approval gate, details or suggestions drifted is
// resolved as revalidated and replaced by a fresh pending record. Closed records
// are never reopened; an ignored fingerprint stays suppressed unless the
// violation has become one that cannot be ignored.
func (t *Tracker) Reconcile(scheduleID string, existing, detected []models.Conflict) ReconcileResult {
	open := make(map[string]models.Conflict)
	ignored := make(map[string]bool)
	for _, c := range existing {
		switch {
		case c.Open():
			if _, dup := open[c.Fingerprint]; !dup {
				open[c.Fingerprint] = c
			}
		case c.Status == models.ConflictStatusIgnored:
			ignored[c.Fingerprint] = true
		}
	}

	var result ReconcileResult
	seen := make(map[string]bool, len(detected))
	stale := make(map[string]bool)
	for _, c := range detected {
		if seen[c.Fingerprint] {
			continue
		}
		seen[c.Fingerprint] = true
		if kept, ok := open[c.Fingerprint]; ok {
			if sameAssessment(kept, c) {
				result.Unchanged = append(result.Unchanged, kept)
				continue
			}
			stale[kept.ID] = true
			result.Created = append(result.Created, t.Register(scheduleID, c))
			continue
		}
		if ignored[c.Fingerprint] && c.Severity != models.SeverityCritical && !c.BlocksApproval {
			continue
		}
		result.Created = append(result.Created, t.Register(scheduleID, c))
	}

	for _, c := range existing {
		if !c.Open() {
			continue
		}
		notes := "no longer detected"
		switch {
		case stale[c.ID]:
			notes = "superseded by re-detection"
		case seen[c.Fingerprint]:
			continue
		}
		resolved, err := t.Resolve(c, Resolution{
			Resolver: SystemActor,
			Notes:    notes,
			Actions:  []models.ResolutionAction{models.ActionRevalidated},
		})
		if err != nil {
			continue
		}
		result.Resolved = append(result.Resolved, resolved)
	}
	return result
}

// sameAssessment reports whether a stored open record still describes the
// detected violation.
func sameAssessment(stored, detected models.Conflict) bool {
	if stored.Severity != detected.Severity || stored.BlocksApproval != detected.BlocksApproval {
		return false
	}
	if !jsonEqual(stored.Details, detected.Details) {
		return false
	}
	if len(stored.SuggestedSolutions) == 0 && len(detected.SuggestedSolutions) == 0 {
		return true
	}
	return jsonEqual(stored.SuggestedSolutions, detected.SuggestedSolutions)
}

func jsonEqual(a, b interface{}) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(left, right)
}
