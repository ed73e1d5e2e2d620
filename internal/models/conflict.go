package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConflictType classifies the violated constraint.
type ConflictType string

const (
	ConflictTypeTeacher  ConflictType = "teacher"
	ConflictTypeRoom     ConflictType = "room"
	ConflictTypeClass    ConflictType = "class"
	ConflictTypeTime     ConflictType = "time"
	ConflictTypeCapacity ConflictType = "capacity"
)

// Known reports whether t is one of the detected conflict types.
func (t ConflictType) Known() bool {
	switch t {
	case ConflictTypeTeacher, ConflictTypeRoom, ConflictTypeClass, ConflictTypeTime, ConflictTypeCapacity:
		return true
	}
	return false
}

// ConflictSeverity ranks how urgently a conflict must be handled.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityHigh     ConflictSeverity = "high"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityLow      ConflictSeverity = "low"
)

// Rank orders severities from most (0) to least severe.
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// DetectionMethod records how the conflict was found.
type DetectionMethod string

const (
	DetectionAutomatic  DetectionMethod = "automatic"
	DetectionManual     DetectionMethod = "manual"
	DetectionValidation DetectionMethod = "validation"
)

// ConflictStatus is the resolution lifecycle state.
type ConflictStatus string

const (
	ConflictStatusPending      ConflictStatus = "pending"
	ConflictStatusAcknowledged ConflictStatus = "acknowledged"
	ConflictStatusInProgress   ConflictStatus = "in_progress"
	ConflictStatusEscalated    ConflictStatus = "escalated"
	ConflictStatusResolved     ConflictStatus = "resolved"
	ConflictStatusIgnored      ConflictStatus = "ignored"
)

// Closed reports whether the status is terminal.
func (s ConflictStatus) Closed() bool {
	return s == ConflictStatusResolved || s == ConflictStatusIgnored
}

// ResolutionAction names a remediation step.
type ResolutionAction string

const (
	ActionRescheduleSession ResolutionAction = "reschedule_session"
	ActionAssignSubstitute  ResolutionAction = "assign_substitute"
	ActionCombineSessions   ResolutionAction = "combine_sessions"
	ActionChangeRoom        ResolutionAction = "change_room"
	ActionVirtualSession    ResolutionAction = "virtual_session"
	ActionAdjustTime        ResolutionAction = "adjust_time"
	ActionMoveToOtherDay    ResolutionAction = "move_to_other_day"
	ActionSplitClass        ResolutionAction = "split_class"
	ActionManualReview      ResolutionAction = "manual_review"
	ActionRevalidated       ResolutionAction = "revalidated"
)

// ImpactTier is the static disruption estimate of an action.
type ImpactTier string

const (
	ImpactMinimal     ImpactTier = "minimal"
	ImpactModerate    ImpactTier = "moderate"
	ImpactSignificant ImpactTier = "significant"
)

// Rank orders tiers from least (0) to most disruptive.
func (t ImpactTier) Rank() int {
	switch t {
	case ImpactMinimal:
		return 0
	case ImpactModerate:
		return 1
	case ImpactSignificant:
		return 2
	default:
		return 3
	}
}

// SuggestedSolution is one ranked remediation template.
type SuggestedSolution struct {
	Action      ResolutionAction `json:"action" yaml:"action"`
	Description string           `json:"description" yaml:"description"`
	Impact      ImpactTier       `json:"impact" yaml:"impact,omitempty"`
	Automatic   bool             `json:"automatic" yaml:"automatic,omitempty"`
}

// Solutions stores suggestions as JSON.
type Solutions []SuggestedSolution

// Value implements driver.Valuer.
func (s Solutions) Value() (driver.Value, error) { return jsonValue(s, "[]") }

// Scan implements sql.Scanner.
func (s *Solutions) Scan(src interface{}) error { return jsonScan(src, s) }

// ConflictHistoryEntry is an immutable audit record of one transition.
type ConflictHistoryEntry struct {
	From  ConflictStatus `json:"from,omitempty"`
	To    ConflictStatus `json:"to"`
	Actor string         `json:"actor"`
	At    time.Time      `json:"at"`
	Note  string         `json:"note,omitempty"`
}

// ConflictHistory stores the transition log as JSON.
type ConflictHistory []ConflictHistoryEntry

// Value implements driver.Valuer.
func (h ConflictHistory) Value() (driver.Value, error) { return jsonValue(h, "[]") }

// Scan implements sql.Scanner.
func (h *ConflictHistory) Scan(src interface{}) error { return jsonScan(src, h) }

// Conflict is a detected violation in a session set.
type Conflict struct {
	ID                 string           `db:"id" json:"id"`
	ScheduleID         string           `db:"schedule_id" json:"schedule_id"`
	Type               ConflictType     `db:"type" json:"type"`
	Severity           ConflictSeverity `db:"severity" json:"severity"`
	SessionIDs         StringList       `db:"session_ids" json:"session_ids"`
	DetectionMethod    DetectionMethod  `db:"detection_method" json:"detection_method"`
	Status             ConflictStatus   `db:"status" json:"status"`
	BlocksApproval     bool             `db:"blocks_approval" json:"blocks_approval"`
	AutoResolvable     bool             `db:"auto_resolvable" json:"auto_resolvable"`
	Description        string           `db:"description" json:"description"`
	SuggestedSolutions Solutions        `db:"suggested_solutions" json:"suggested_solutions"`
	Details            ConflictDetails  `db:"details" json:"details"`
	Stakeholders       StringList       `db:"stakeholders" json:"stakeholders"`
	Fingerprint        string           `db:"fingerprint" json:"fingerprint"`
	ImpactScore        int              `db:"impact_score" json:"impact_score"`
	History            ConflictHistory  `db:"history" json:"history"`
	ResolvedBy         *string          `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt         *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes    *string          `db:"resolution_notes" json:"resolution_notes,omitempty"`
	ResolutionActions  StringList       `db:"resolution_actions" json:"resolution_actions"`
	DetectedAt         time.Time        `db:"detected_at" json:"detected_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Open reports whether the conflict still needs attention.
func (c Conflict) Open() bool {
	return !c.Status.Closed()
}

// ConflictFilter narrows conflict listings.
type ConflictFilter struct {
	ScheduleID   string
	Status       ConflictStatus
	Severity     ConflictSeverity
	Type         ConflictType
	OpenOnly     bool
	BlockingOnly bool
}

// ConflictDetail is the closed set of type-specific conflict payloads.
type ConflictDetail interface {
	ConflictType() ConflictType
}

// TeacherClash: one teacher is booked twice in a slot.
type TeacherClash struct {
	TeacherID  string   `json:"teacher_id"`
	Day        int      `json:"day"`
	Period     int      `json:"period"`
	SessionIDs []string `json:"session_ids"`
}

// ConflictType implements ConflictDetail.
func (TeacherClash) ConflictType() ConflictType { return ConflictTypeTeacher }

// RoomClash: one room is booked twice in a slot.
type RoomClash struct {
	RoomID     string   `json:"room_id"`
	Day        int      `json:"day"`
	Period     int      `json:"period"`
	SessionIDs []string `json:"session_ids"`
}

// ConflictType implements ConflictDetail.
func (RoomClash) ConflictType() ConflictType { return ConflictTypeRoom }

// ClassClash: one class attends two lessons in a slot.
type ClassClash struct {
	ClassID    string   `json:"class_id"`
	Day        int      `json:"day"`
	Period     int      `json:"period"`
	SessionIDs []string `json:"session_ids"`
}

// ConflictType implements ConflictDetail.
func (ClassClash) ConflictType() ConflictType { return ConflictTypeClass }

// CapacityOverage: the class headcount exceeds the room capacity.
type CapacityOverage struct {
	SessionID      string  `json:"session_id"`
	RoomID         string  `json:"room_id"`
	ClassID        string  `json:"class_id"`
	Capacity       int     `json:"capacity"`
	Headcount      int     `json:"headcount"`
	OveragePercent float64 `json:"overage_percent"`
}

// ConflictType implements ConflictDetail.
func (CapacityOverage) ConflictType() ConflictType { return ConflictTypeCapacity }

// TimeMismatch reasons.
const (
	TimeReasonBoundary      = "boundary_mismatch"
	TimeReasonNotAssignable = "not_assignable"
)

// TimeMismatch: a session's declared times or slot disagree with the period grid.
type TimeMismatch struct {
	SessionID     string `json:"session_id"`
	Day           int    `json:"day"`
	Period        int    `json:"period"`
	Reason        string `json:"reason"`
	DeclaredStart string `json:"declared_start"`
	DeclaredEnd   string `json:"declared_end"`
	ExpectedStart string `json:"expected_start,omitempty"`
	ExpectedEnd   string `json:"expected_end,omitempty"`
}

// ConflictType implements ConflictDetail.
func (TimeMismatch) ConflictType() ConflictType { return ConflictTypeTime }

// ConflictDetails wraps a ConflictDetail for JSON and database round trips.
type ConflictDetails struct {
	Detail ConflictDetail
}

type conflictDetailsEnvelope struct {
	Kind ConflictType    `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the detail tagged with its kind.
func (d ConflictDetails) MarshalJSON() ([]byte, error) {
	if d.Detail == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(d.Detail)
	if err != nil {
		return nil, err
	}
	return json.Marshal(conflictDetailsEnvelope{Kind: d.Detail.ConflictType(), Data: data})
}

// UnmarshalJSON decodes a tagged detail back into its concrete type.
func (d *ConflictDetails) UnmarshalJSON(raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		d.Detail = nil
		return nil
	}
	var envelope conflictDetailsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}
	var detail ConflictDetail
	switch envelope.Kind {
	case ConflictTypeTeacher:
		var v TeacherClash
		if err := json.Unmarshal(envelope.Data, &v); err != nil {
			return err
		}
		detail = v
	case ConflictTypeRoom:
		var v RoomClash
		if err := json.Unmarshal(envelope.Data, &v); err != nil {
			return err
		}
		detail = v
	case ConflictTypeClass:
		var v ClassClash
		if err := json.Unmarshal(envelope.Data, &v); err != nil {
			return err
		}
		detail = v
	case ConflictTypeCapacity:
		var v CapacityOverage
		if err := json.Unmarshal(envelope.Data, &v); err != nil {
			return err
		}
		detail = v
	case ConflictTypeTime:
		var v TimeMismatch
		if err := json.Unmarshal(envelope.Data, &v); err != nil {
			return err
		}
		detail = v
	default:
		return fmt.Errorf("unknown conflict detail kind %q", envelope.Kind)
	}
	d.Detail = detail
	return nil
}

// Value implements driver.Valuer.
func (d ConflictDetails) Value() (driver.Value, error) {
	raw, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (d *ConflictDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		d.Detail = nil
		return nil
	case []byte:
		return d.UnmarshalJSON(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported conflict details type %T", src)
	}
}
