// Package scheduler implements the timetable engine: slot grid, generator,
// conflict detector, resolution tracker and schedule lifecycle rules.
//
// The package performs no I/O. Callers load teaching loads, settings and
// sessions, run the engine, and persist the result only when a pass succeeds.
package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/sma-timetable/internal/models"
)

const minutesPerDay = 24 * 60

type slotKey struct {
	Day    int
	Period int
}

// Slot is one (day, period) cell of the weekly grid.
type Slot struct {
	Day     int    `json:"day"`
	Period  int    `json:"period"`
	IsBreak bool   `json:"is_break"`
	Start   string `json:"start_time"`
	End     string `json:"end_time"`
}

type periodBounds struct {
	start int
	end   int
}

// Grid is the addressable space of one week derived from generation settings.
type Grid struct {
	days    []int
	periods int
	breaks  map[int]bool
	bounds  []periodBounds
}

// NewGrid derives the slot grid. Break and lunch periods stay in the grid
// but are not assignable.
func NewGrid(settings models.GenerationSettings) (*Grid, error) {
	start, err := parseClock(settings.FirstPeriodStart)
	if err != nil {
		return nil, err
	}
	if settings.DailyPeriods < 1 {
		return nil, fmt.Errorf("daily periods must be positive")
	}

	g := &Grid{
		days:    normalizeDays(settings.WorkingDays),
		periods: settings.DailyPeriods,
		breaks:  make(map[int]bool),
		bounds:  make([]periodBounds, settings.DailyPeriods),
	}
	if len(g.days) == 0 {
		return nil, fmt.Errorf("working days must not be empty")
	}

	cursor := start
	for period := 1; period <= settings.DailyPeriods; period++ {
		duration := settings.PeriodDurationMinutes
		switch {
		case settings.LunchBreakPeriod != nil && *settings.LunchBreakPeriod == period:
			duration = settings.LunchDurationMinutes
			g.breaks[period] = true
		case settings.BreakPeriods.Contains(period):
			duration = settings.BreakDurationMinutes
			g.breaks[period] = true
		}
		g.bounds[period-1] = periodBounds{start: cursor, end: cursor + duration}
		cursor += duration
	}
	if cursor > minutesPerDay {
		return nil, fmt.Errorf("school day ends after midnight (%s)", formatClock(cursor))
	}
	return g, nil
}

// Days returns the sorted working days.
func (g *Grid) Days() []int {
	out := make([]int, len(g.days))
	copy(out, g.days)
	return out
}

// Periods returns the number of periods per day.
func (g *Grid) Periods() int { return g.periods }

// Contains reports whether the cell exists in the grid.
func (g *Grid) Contains(day, period int) bool {
	if period < 1 || period > g.periods {
		return false
	}
	for _, d := range g.days {
		if d == day {
			return true
		}
	}
	return false
}

// Assignable reports whether a lesson may be placed in the cell.
func (g *Grid) Assignable(day, period int) bool {
	return g.Contains(day, period) && !g.breaks[period]
}

// IsBreak reports whether the period is a break or lunch period.
func (g *Grid) IsBreak(period int) bool { return g.breaks[period] }

// Bounds returns the derived start and end time of a period.
func (g *Grid) Bounds(period int) (string, string, bool) {
	if period < 1 || period > g.periods {
		return "", "", false
	}
	b := g.bounds[period-1]
	return formatClock(b.start), formatClock(b.end), true
}

// AssignablePeriods lists the periods open for lessons, ascending.
func (g *Grid) AssignablePeriods() []int {
	periods := make([]int, 0, g.periods)
	for p := 1; p <= g.periods; p++ {
		if !g.breaks[p] {
			periods = append(periods, p)
		}
	}
	return periods
}

// Slots returns every cell ordered by day then period.
func (g *Grid) Slots() []Slot {
	slots := make([]Slot, 0, len(g.days)*g.periods)
	for _, day := range g.days {
		for p := 1; p <= g.periods; p++ {
			start, end, _ := g.Bounds(p)
			slots = append(slots, Slot{Day: day, Period: p, IsBreak: g.breaks[p], Start: start, End: end})
		}
	}
	return slots
}

// AssignableSlots returns the cells open for lessons ordered by day then period.
func (g *Grid) AssignableSlots() []Slot {
	all := g.Slots()
	out := all[:0]
	for _, slot := range all {
		if !slot.IsBreak {
			out = append(out, slot)
		}
	}
	return out
}

// Stamp rewrites a session's start and end time from the grid.
func (g *Grid) Stamp(session *models.Session) {
	if start, end, ok := g.Bounds(session.Period); ok {
		session.StartTime = start
		session.EndTime = end
	}
}

func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", raw)
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func normalizeDays(days []int) []int {
	unique := make(map[int]struct{})
	for _, day := range days {
		if day < 1 || day > 7 {
			continue
		}
		unique[day] = struct{}{}
	}
	result := make([]int, 0, len(unique))
	for day := range unique {
		result = append(result, day)
	}
	sort.Ints(result)
	return result
}

var dayIndexMap = map[int]string{
	1: "MONDAY",
	2: "TUESDAY",
	3: "WEDNESDAY",
	4: "THURSDAY",
	5: "FRIDAY",
	6: "SATURDAY",
	7: "SUNDAY",
}

var dayNameIndex = map[string]int{
	"MONDAY":    1,
	"TUESDAY":   2,
	"WEDNESDAY": 3,
	"THURSDAY":  4,
	"FRIDAY":    5,
	"SATURDAY":  6,
	"SUNDAY":    7,
}

// DayName maps an ISO weekday number to its upper-case name.
func DayName(day int) string {
	if name, ok := dayIndexMap[day]; ok {
		return name
	}
	return ""
}

// ParseDay accepts an ISO weekday number or an English day name.
func ParseDay(raw string) int {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if day, ok := dayNameIndex[raw]; ok {
		return day
	}
	if len(raw) == 1 && raw[0] >= '1' && raw[0] <= '7' {
		return int(raw[0] - '0')
	}
	return 0
}
