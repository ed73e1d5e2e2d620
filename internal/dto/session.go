package dto

import "github.com/noah-isme/sma-timetable/internal/models"

// SessionRequest creates or replaces a hand-authored session.
type SessionRequest struct {
	TeachingLoadID *string              `json:"teaching_load_id"`
	TeacherID      string               `json:"teacher_id" validate:"required"`
	SubjectID      string               `json:"subject_id" validate:"required"`
	ClassID        string               `json:"class_id" validate:"required"`
	RoomID         *string              `json:"room_id"`
	Day            DayValue             `json:"day" validate:"min=1,max=7"`
	Period         int                  `json:"period" validate:"min=1,max=12"`
	Status         models.SessionStatus `json:"status" validate:"omitempty,oneof=scheduled confirmed cancelled completed substituted"`
}

// SubstituteRequest assigns a substitute teacher to a session.
type SubstituteRequest struct {
	SubstituteTeacherID string `json:"substitute_teacher_id" validate:"required"`
	Reason              string `json:"reason" validate:"required,max=255"`
}

// SessionQuery filters session listings.
type SessionQuery struct {
	Day       string `form:"day"`
	TeacherID string `form:"teacher_id"`
	ClassID   string `form:"class_id"`
	RoomID    string `form:"room_id"`
}

// CheckResponse lists the conflicts a candidate session would cause.
type CheckResponse struct {
	Clean     bool              `json:"clean"`
	Conflicts []models.Conflict `json:"conflicts"`
}

// SessionMutationResponse returns the stored session and the open conflicts of its schedule.
type SessionMutationResponse struct {
	Session   models.Session    `json:"session"`
	Conflicts []models.Conflict `json:"conflicts"`
}
