package scheduler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-timetable/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateSettings checks every field and cross-field rule of the settings.
func ValidateSettings(settings models.GenerationSettings) error {
	var v violations
	v.settings(settings)
	return v.err()
}

// ValidateInput checks settings and loads together, collecting every violation.
func ValidateInput(loads []models.TeachingLoad, settings models.GenerationSettings) error {
	var v violations
	v.settings(settings)
	v.loads(loads, settings)
	return v.err()
}

func (v *violations) settings(s models.GenerationSettings) {
	v.structFields("settings", s)

	for _, period := range s.BreakPeriods {
		if period > s.DailyPeriods {
			v.add("settings.break_periods", "break period %d exceeds daily periods %d", period, s.DailyPeriods)
		}
	}
	if s.LunchBreakPeriod != nil && *s.LunchBreakPeriod > s.DailyPeriods {
		v.add("settings.lunch_break_period", "lunch period %d exceeds daily periods %d", *s.LunchBreakPeriod, s.DailyPeriods)
	}

	start, err := parseClock(s.FirstPeriodStart)
	if err != nil && s.FirstPeriodStart != "" {
		v.add("settings.first_period_start", "%v", err)
	}
	if err == nil && s.DailyPeriods > 0 {
		total := 0
		for p := 1; p <= s.DailyPeriods; p++ {
			switch {
			case s.LunchBreakPeriod != nil && *s.LunchBreakPeriod == p:
				total += s.LunchDurationMinutes
			case s.BreakPeriods.Contains(p):
				total += s.BreakDurationMinutes
			default:
				total += s.PeriodDurationMinutes
			}
		}
		if start+total > minutesPerDay {
			v.add("settings.first_period_start", "school day must end before midnight")
		}
	}

	if s.DailyPeriods >= 1 {
		assignable := 0
		for p := 1; p <= s.DailyPeriods; p++ {
			if !s.IsBreak(p) {
				assignable++
			}
		}
		if assignable == 0 {
			v.add("settings.break_periods", "at least one period per day must be open for lessons")
		}
	}
}

func (v *violations) loads(loads []models.TeachingLoad, s models.GenerationSettings) {
	seenIDs := make(map[string]int, len(loads))
	seenTuples := make(map[string]int, len(loads))
	working := models.Days(normalizeDays(s.WorkingDays))

	for i, load := range loads {
		prefix := fmt.Sprintf("loads[%d]", i)
		v.structFields(prefix, load)

		if strings.TrimSpace(load.ID) == "" {
			v.add(prefix+".id", "is required")
		} else if prev, ok := seenIDs[load.ID]; ok {
			v.add(prefix+".id", "duplicates loads[%d]", prev)
		} else {
			seenIDs[load.ID] = i
		}

		if s.InstitutionID != "" && load.InstitutionID != "" && load.InstitutionID != s.InstitutionID {
			v.add(prefix+".institution_id", "belongs to institution %s, settings belong to %s", load.InstitutionID, s.InstitutionID)
		}

		tuple := strings.Join([]string{load.TeacherID, load.SubjectID, load.ClassID, load.AcademicPeriodID}, "|")
		if prev, ok := seenTuples[tuple]; ok {
			v.add(prefix, "teacher, subject and class already loaded by loads[%d] for this academic period", prev)
		} else {
			seenTuples[tuple] = i
		}

		if len(load.IdealDistribution) > 0 {
			if total := load.IdealDistribution.Total(); total != load.WeeklyHours {
				v.add(prefix+".ideal_distribution", "lesson counts sum to %d, weekly hours are %d", total, load.WeeklyHours)
			}
			days := make(map[int]bool, len(load.IdealDistribution))
			for j, entry := range load.IdealDistribution {
				if days[entry.Day] {
					v.add(fmt.Sprintf("%s.ideal_distribution[%d].day", prefix, j), "day %d listed twice", entry.Day)
				}
				days[entry.Day] = true
				if len(working) > 0 && !working.Contains(entry.Day) {
					v.add(fmt.Sprintf("%s.ideal_distribution[%d].day", prefix, j), "day %d is not a working day", entry.Day)
				}
			}
		}
	}
}

func (v *violations) structFields(prefix string, value interface{}) {
	if err := validate.Struct(value); err != nil {
		v.fromValidator(prefix, err)
	}
}

func (v *violations) fromValidator(prefix string, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.add(prefix, "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		v.add(prefix+"."+field, "%s", describeRule(fe))
	}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
