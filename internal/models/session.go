package models

import "time"

// SessionStatus represents the state of a single lesson.
type SessionStatus string

const (
	SessionStatusScheduled   SessionStatus = "scheduled"
	SessionStatusConfirmed   SessionStatus = "confirmed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusSubstituted SessionStatus = "substituted"
)

// SessionSource distinguishes generator output from hand-authored entries.
type SessionSource string

const (
	SessionSourceGenerated SessionSource = "generated"
	SessionSourceManual    SessionSource = "manual"
)

// Session is one concrete lesson occupying exactly one slot.
type Session struct {
	ID                  string        `db:"id" json:"id"`
	ScheduleID          string        `db:"schedule_id" json:"schedule_id"`
	TeachingLoadID      *string       `db:"teaching_load_id" json:"teaching_load_id,omitempty"`
	TeacherID           string        `db:"teacher_id" json:"teacher_id"`
	SubjectID           string        `db:"subject_id" json:"subject_id"`
	ClassID             string        `db:"class_id" json:"class_id"`
	RoomID              *string       `db:"room_id" json:"room_id,omitempty"`
	Day                 int           `db:"day" json:"day"`
	Period              int           `db:"period" json:"period"`
	StartTime           string        `db:"start_time" json:"start_time"`
	EndTime             string        `db:"end_time" json:"end_time"`
	Status              SessionStatus `db:"status" json:"status"`
	Source              SessionSource `db:"source" json:"source"`
	SubstituteTeacherID *string       `db:"substitute_teacher_id" json:"substitute_teacher_id,omitempty"`
	SubstituteReason    *string       `db:"substitute_reason" json:"substitute_reason,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// Occupies reports whether the session holds its slot for conflict purposes.
func (s Session) Occupies() bool {
	switch s.Status {
	case SessionStatusScheduled, SessionStatusConfirmed, SessionStatusSubstituted, "":
		return true
	default:
		return false
	}
}

// EffectiveTeacherID returns the teacher actually delivering the lesson.
func (s Session) EffectiveTeacherID() string {
	if s.SubstituteTeacherID != nil && *s.SubstituteTeacherID != "" {
		return *s.SubstituteTeacherID
	}
	return s.TeacherID
}

// Room returns the room identifier or an empty string.
func (s Session) Room() string {
	if s.RoomID == nil {
		return ""
	}
	return *s.RoomID
}

// LoadID returns the originating teaching load identifier or an empty string.
func (s Session) LoadID() string {
	if s.TeachingLoadID == nil {
		return ""
	}
	return *s.TeachingLoadID
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	ScheduleID string
	Day        int
	TeacherID  string
	ClassID    string
	RoomID     string
}
