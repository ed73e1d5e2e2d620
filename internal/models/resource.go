package models

import "time"

// Room is a physical teaching space.
type Room struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id" validate:"required"`
	Name          string    `db:"name" json:"name" validate:"required"`
	Capacity      *int      `db:"capacity" json:"capacity,omitempty" validate:"omitempty,min=1"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ClassGroup is a cohort of students attending lessons together.
type ClassGroup struct {
	ID            string    `db:"id" json:"id"`
	InstitutionID string    `db:"institution_id" json:"institution_id" validate:"required"`
	Name          string    `db:"name" json:"name" validate:"required"`
	Headcount     *int      `db:"headcount" json:"headcount,omitempty" validate:"omitempty,min=0"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
