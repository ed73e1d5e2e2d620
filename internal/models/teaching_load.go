package models

import (
	"database/sql/driver"
	"time"
)

// DayAllocation is one entry of a load's ideal weekly distribution.
type DayAllocation struct {
	Day         int `json:"day" validate:"min=1,max=7"`
	LessonCount int `json:"lesson_count" validate:"min=0"`
}

// DayAllocations stores ordered distribution entries as JSON.
type DayAllocations []DayAllocation

// Value implements driver.Valuer.
func (d DayAllocations) Value() (driver.Value, error) { return jsonValue(d, "[]") }

// Scan implements sql.Scanner.
func (d *DayAllocations) Scan(src interface{}) error { return jsonScan(src, d) }

// Total sums the lesson counts of the distribution.
func (d DayAllocations) Total() int {
	total := 0
	for _, item := range d {
		total += item.LessonCount
	}
	return total
}

// PeriodRef addresses a single (day, period) cell.
type PeriodRef struct {
	Day    int `json:"day" validate:"min=1,max=7"`
	Period int `json:"period" validate:"min=1,max=12"`
}

// PeriodRefs stores a list of cells as JSON.
type PeriodRefs []PeriodRef

// Value implements driver.Valuer.
func (p PeriodRefs) Value() (driver.Value, error) { return jsonValue(p, "[]") }

// Scan implements sql.Scanner.
func (p *PeriodRefs) Scan(src interface{}) error { return jsonScan(src, p) }

// Contains reports whether the (day, period) cell is listed.
func (p PeriodRefs) Contains(day, period int) bool {
	for _, ref := range p {
		if ref.Day == day && ref.Period == period {
			return true
		}
	}
	return false
}

// TeachingLoad is a required weekly-hour commitment between a teacher, a subject and a class.
type TeachingLoad struct {
	ID                        string         `db:"id" json:"id"`
	InstitutionID             string         `db:"institution_id" json:"institution_id" validate:"required"`
	AcademicPeriodID          string         `db:"academic_period_id" json:"academic_period_id" validate:"required"`
	TeacherID                 string         `db:"teacher_id" json:"teacher_id" validate:"required"`
	SubjectID                 string         `db:"subject_id" json:"subject_id" validate:"required"`
	ClassID                   string         `db:"class_id" json:"class_id" validate:"required"`
	RoomID                    *string        `db:"room_id" json:"room_id,omitempty"`
	WeeklyHours               int            `db:"weekly_hours" json:"weekly_hours" validate:"gt=0"`
	PriorityLevel             int            `db:"priority_level" json:"priority_level" validate:"min=1,max=10"`
	PreferredConsecutiveHours int            `db:"preferred_consecutive_hours" json:"preferred_consecutive_hours" validate:"min=1"`
	IsCoreSubject             bool           `db:"is_core_subject" json:"is_core_subject"`
	IdealDistribution         DayAllocations `db:"ideal_distribution" json:"ideal_distribution" validate:"dive"`
	UnavailablePeriods        PeriodRefs     `db:"unavailable_periods" json:"unavailable_periods" validate:"dive"`
	CreatedAt                 time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at" json:"updated_at"`
}

// TeachingLoadFilter narrows load catalog queries.
type TeachingLoadFilter struct {
	InstitutionID    string
	AcademicPeriodID string
	TeacherID        string
	ClassID          string
}
