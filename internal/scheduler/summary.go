package scheduler

import (
	"sort"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// CoverageGap is a teaching load whose scheduled hours differ from its weekly hours.
type CoverageGap struct {
	TeachingLoadID string `json:"teaching_load_id"`
	Required       int    `json:"required"`
	Scheduled      int    `json:"scheduled"`
}

// Summary is the read model of a schedule's health.
type Summary struct {
	ScheduleID          string                          `json:"schedule_id"`
	TotalSessions       int                             `json:"total_sessions"`
	SessionsByDay       map[int]int                     `json:"sessions_by_day"`
	SessionsByStatus    map[models.SessionStatus]int    `json:"sessions_by_status"`
	OpenConflicts       int                             `json:"open_conflicts"`
	ConflictsBySeverity map[models.ConflictSeverity]int `json:"conflicts_by_severity"`
	ConflictsByType     map[models.ConflictType]int     `json:"conflicts_by_type"`
	BlockingConflicts   int                             `json:"blocking_conflicts"`
	ValidationScore     int                             `json:"validation_score"`
	CoverageGaps        []CoverageGap                   `json:"coverage_gaps"`
}

// ValidationScore starts at 100 and deducts per open conflict by severity.
func ValidationScore(conflicts []models.Conflict) int {
	score := 100
	for _, c := range conflicts {
		if !c.Open() {
			continue
		}
		switch c.Severity {
		case models.SeverityCritical, models.SeverityHigh:
			score -= 10
		case models.SeverityMedium:
			score -= 5
		case models.SeverityLow:
			score -= 2
		default:
			score -= 3
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// Summarize aggregates sessions, conflicts and load coverage of one schedule.
func Summarize(scheduleID string, sessions []models.Session, conflicts []models.Conflict, loads []models.TeachingLoad) Summary {
	summary := Summary{
		ScheduleID:          scheduleID,
		TotalSessions:       len(sessions),
		SessionsByDay:       make(map[int]int),
		SessionsByStatus:    make(map[models.SessionStatus]int),
		ConflictsBySeverity: make(map[models.ConflictSeverity]int),
		ConflictsByType:     make(map[models.ConflictType]int),
		CoverageGaps:        []CoverageGap{},
	}

	scheduled := make(map[string]int)
	for _, s := range sessions {
		summary.SessionsByDay[s.Day]++
		status := s.Status
		if status == "" {
			status = models.SessionStatusScheduled
		}
		summary.SessionsByStatus[status]++
		if s.Occupies() && s.LoadID() != "" {
			scheduled[s.LoadID()]++
		}
	}

	for _, c := range conflicts {
		if !c.Open() {
			continue
		}
		summary.OpenConflicts++
		summary.ConflictsBySeverity[c.Severity]++
		summary.ConflictsByType[c.Type]++
		if c.BlocksApproval {
			summary.BlockingConflicts++
		}
	}
	summary.ValidationScore = ValidationScore(conflicts)

	for _, load := range loads {
		if got := scheduled[load.ID]; got != load.WeeklyHours {
			summary.CoverageGaps = append(summary.CoverageGaps, CoverageGap{
				TeachingLoadID: load.ID,
				Required:       load.WeeklyHours,
				Scheduled:      got,
			})
		}
	}
	sort.Slice(summary.CoverageGaps, func(i, j int) bool {
		return summary.CoverageGaps[i].TeachingLoadID < summary.CoverageGaps[j].TeachingLoadID
	})
	return summary
}
