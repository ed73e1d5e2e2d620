package dto

import "github.com/noah-isme/sma-timetable/internal/models"

// ConflictQuery filters conflict listings.
type ConflictQuery struct {
	Status       string `form:"status" validate:"omitempty,oneof=pending acknowledged in_progress resolved ignored escalated"`
	Severity     string `form:"severity" validate:"omitempty,oneof=critical high medium low"`
	Type         string `form:"type" validate:"omitempty,oneof=teacher room class time capacity"`
	OpenOnly     bool   `form:"open"`
	BlockingOnly bool   `form:"blocking"`
}

// ConflictNoteRequest carries an optional note for a status transition.
type ConflictNoteRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// ResolveConflictRequest closes a conflict manually.
type ResolveConflictRequest struct {
	Notes   string                    `json:"notes" validate:"max=1000"`
	Actions []models.ResolutionAction `json:"actions" validate:"required,min=1,dive,required"`
}

// DetectResponse summarises a detection and reconcile pass.
type DetectResponse struct {
	Detected  int               `json:"detected"`
	Created   []models.Conflict `json:"created"`
	Resolved  []models.Conflict `json:"resolved"`
	Unchanged int               `json:"unchanged"`
}

// AutoResolveResponse reports automatic remediation attempts.
type AutoResolveResponse struct {
	Attempted int               `json:"attempted"`
	Applied   int               `json:"applied"`
	Resolved  []models.Conflict `json:"resolved"`
	Skipped   []AutoSkip        `json:"skipped"`
}

// AutoSkip explains why a conflict was left as is.
type AutoSkip struct {
	ConflictID string `json:"conflict_id"`
	Reason     string `json:"reason"`
}
