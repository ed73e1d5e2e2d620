package dto

import "github.com/noah-isme/sma-timetable/internal/models"

// TeachingLoadQuery filters the load catalog.
type TeachingLoadQuery struct {
	InstitutionID    string `form:"institution_id"`
	AcademicPeriodID string `form:"academic_period_id"`
	TeacherID        string `form:"teacher_id"`
	ClassID          string `form:"class_id"`
}

// RoomsRequest replaces or extends the room catalog of an institution.
type RoomsRequest struct {
	InstitutionID string        `json:"institution_id" validate:"required"`
	Rooms         []models.Room `json:"rooms" validate:"required,min=1,dive"`
}

// ClassesRequest replaces or extends the class catalog of an institution.
type ClassesRequest struct {
	InstitutionID string              `json:"institution_id" validate:"required"`
	Classes       []models.ClassGroup `json:"classes" validate:"required,min=1,dive"`
}
