package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionScheduleCreate     = "SCHEDULE_CREATE"
	AuditActionScheduleTransition = "SCHEDULE_TRANSITION"
	AuditActionScheduleGenerate   = "SCHEDULE_GENERATE"
	AuditActionSessionCreate      = "SESSION_CREATE"
	AuditActionSessionUpdate      = "SESSION_UPDATE"
	AuditActionSessionDelete      = "SESSION_DELETE"
	AuditActionConflictTransition = "CONFLICT_TRANSITION"
	AuditActionSettingsUpdate     = "SETTINGS_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
