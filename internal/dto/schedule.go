package dto

import (
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

// CreateScheduleRequest opens a new draft timetable.
type CreateScheduleRequest struct {
	InstitutionID    string `json:"institution_id" validate:"required"`
	AcademicPeriodID string `json:"academic_period_id" validate:"required"`
	Name             string `json:"name" validate:"required,max=120"`
}

// ScheduleQuery filters schedule listings.
type ScheduleQuery struct {
	InstitutionID    string `form:"institution_id"`
	AcademicPeriodID string `form:"academic_period_id"`
	Status           string `form:"status" validate:"omitempty,oneof=draft pending_review approved active archived"`
	Page             int    `form:"page"`
	PageSize         int    `form:"page_size"`
}

// TransitionResponse reports a lifecycle move and any schedule it displaced.
type TransitionResponse struct {
	Schedule models.Schedule  `json:"schedule"`
	Archived *models.Schedule `json:"archived,omitempty"`
}

// GenerateRequest tunes one generation run.
type GenerateRequest struct {
	DryRun bool `json:"dry_run" form:"dry_run"`
}

// GenerateResponse returns the generation outcome.
type GenerateResponse struct {
	ScheduleID   string                   `json:"schedule_id"`
	DryRun       bool                     `json:"dry_run"`
	Sessions     []models.Session         `json:"sessions"`
	Unplaced     []scheduler.UnplacedLoad `json:"unplaced"`
	Warnings     []scheduler.Warning      `json:"warnings"`
	Stats        scheduler.Stats          `json:"stats"`
	Conflicts    []models.Conflict        `json:"conflicts"`
	AutoResolved int                      `json:"auto_resolved"`
}
