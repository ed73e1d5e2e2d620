package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ScheduleStatus represents lifecycle phases of a weekly timetable.
type ScheduleStatus string

const (
	ScheduleStatusDraft         ScheduleStatus = "draft"
	ScheduleStatusPendingReview ScheduleStatus = "pending_review"
	ScheduleStatusApproved      ScheduleStatus = "approved"
	ScheduleStatusActive        ScheduleStatus = "active"
	ScheduleStatusArchived      ScheduleStatus = "archived"
)

// Schedule is the weekly timetable for one institution and academic period.
type Schedule struct {
	ID               string         `db:"id" json:"id"`
	InstitutionID    string         `db:"institution_id" json:"institution_id"`
	AcademicPeriodID string         `db:"academic_period_id" json:"academic_period_id"`
	Name             string         `db:"name" json:"name"`
	Status           ScheduleStatus `db:"status" json:"status"`
	CreatedBy        *string        `db:"created_by" json:"created_by,omitempty"`
	SubmittedBy      *string        `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt      *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedBy       *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	ActivatedAt      *time.Time     `db:"activated_at" json:"activated_at,omitempty"`
	ArchivedAt       *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	Meta             types.JSONText `db:"meta" json:"meta"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	InstitutionID    string
	AcademicPeriodID string
	Status           ScheduleStatus
	Page             int
	PageSize         int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
