package models

import (
	"database/sql/driver"
	"time"
)

// ConflictStrategy selects how conflicts found after generation are handled.
type ConflictStrategy string

const (
	ConflictStrategyBalanced        ConflictStrategy = "balanced"
	ConflictStrategyTeacherPriority ConflictStrategy = "teacher_priority"
	ConflictStrategyClassPriority   ConflictStrategy = "class_priority"
	ConflictStrategyAutomatic       ConflictStrategy = "automatic"
	ConflictStrategyManual          ConflictStrategy = "manual"
)

const (
	// DefaultMaxConsecutiveSameSubject caps back-to-back lessons of one subject for a class.
	DefaultMaxConsecutiveSameSubject = 2
	// DefaultMinBreakBetweenSameSubject is the minimum number of periods between non-adjacent runs.
	DefaultMinBreakBetweenSameSubject = 1
)

// GenerationPreferences is the soft-preference bundle of the generator.
type GenerationPreferences struct {
	MinimizeGaps                 bool             `json:"minimize_gaps"`
	BalanceDailyLoad             bool             `json:"balance_daily_load"`
	PrioritizeTeacherPreferences bool             `json:"prioritize_teacher_preferences"`
	PreferMorningCoreSubjects    bool             `json:"prefer_morning_core_subjects"`
	MaxConsecutiveSameSubject    *int             `json:"max_consecutive_same_subject,omitempty" validate:"omitempty,min=1,max=12"`
	MinBreakBetweenSameSubject   *int             `json:"min_break_between_same_subject,omitempty" validate:"omitempty,min=0,max=12"`
	ConflictResolutionStrategy   ConflictStrategy `json:"conflict_resolution_strategy" validate:"omitempty,oneof=balanced teacher_priority class_priority automatic manual"`
}

// Value implements driver.Valuer.
func (p GenerationPreferences) Value() (driver.Value, error) { return jsonValue(p, "{}") }

// Scan implements sql.Scanner.
func (p *GenerationPreferences) Scan(src interface{}) error { return jsonScan(src, p) }

// WithDefaults fills unset preference values. An explicit zero break is kept.
func (p GenerationPreferences) WithDefaults() GenerationPreferences {
	if p.MaxConsecutiveSameSubject == nil {
		v := DefaultMaxConsecutiveSameSubject
		p.MaxConsecutiveSameSubject = &v
	}
	if p.MinBreakBetweenSameSubject == nil {
		v := DefaultMinBreakBetweenSameSubject
		p.MinBreakBetweenSameSubject = &v
	}
	if p.ConflictResolutionStrategy == "" {
		p.ConflictResolutionStrategy = ConflictStrategyBalanced
	}
	return p
}

// MaxConsecutive returns the consecutive-lesson cap, falling back to the default.
func (p GenerationPreferences) MaxConsecutive() int {
	if p.MaxConsecutiveSameSubject == nil {
		return DefaultMaxConsecutiveSameSubject
	}
	return *p.MaxConsecutiveSameSubject
}

// MinBreak returns the minimum gap between runs of one subject.
func (p GenerationPreferences) MinBreak() int {
	if p.MinBreakBetweenSameSubject == nil {
		return DefaultMinBreakBetweenSameSubject
	}
	return *p.MinBreakBetweenSameSubject
}

// ApprovalPolicy holds institution rules consulted when marking conflicts as blocking.
type ApprovalPolicy struct {
	RequireZeroHighSeverity bool `json:"require_zero_high_severity"`
}

// Value implements driver.Valuer.
func (p ApprovalPolicy) Value() (driver.Value, error) { return jsonValue(p, "{}") }

// Scan implements sql.Scanner.
func (p *ApprovalPolicy) Scan(src interface{}) error { return jsonScan(src, p) }

// GenerationSettings captures the institution timing grid and preference bundle.
type GenerationSettings struct {
	InstitutionID         string                `db:"institution_id" json:"institution_id"`
	WorkingDays           Days                  `db:"working_days" json:"working_days" validate:"required,min=1,dive,min=1,max=7"`
	DailyPeriods          int                   `db:"daily_periods" json:"daily_periods" validate:"min=1,max=12"`
	PeriodDurationMinutes int                   `db:"period_duration_minutes" json:"period_duration_minutes" validate:"min=30,max=120"`
	BreakPeriods          Periods               `db:"break_periods" json:"break_periods" validate:"dive,min=1"`
	LunchBreakPeriod      *int                  `db:"lunch_break_period" json:"lunch_break_period,omitempty" validate:"omitempty,min=1"`
	BreakDurationMinutes  int                   `db:"break_duration_minutes" json:"break_duration_minutes" validate:"min=5,max=30"`
	LunchDurationMinutes  int                   `db:"lunch_duration_minutes" json:"lunch_duration_minutes" validate:"min=30,max=120"`
	FirstPeriodStart      string                `db:"first_period_start" json:"first_period_start" validate:"required"`
	Preferences           GenerationPreferences `db:"preferences" json:"preferences"`
	Policy                ApprovalPolicy        `db:"policy" json:"policy"`
	UpdatedAt             time.Time             `db:"updated_at" json:"updated_at"`
}

// IsBreak reports whether the period is a break or the lunch period.
func (s GenerationSettings) IsBreak(period int) bool {
	if s.BreakPeriods.Contains(period) {
		return true
	}
	return s.LunchBreakPeriod != nil && *s.LunchBreakPeriod == period
}
