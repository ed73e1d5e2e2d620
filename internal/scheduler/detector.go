package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// DefaultCapacityCriticalPercent is the overage above which a capacity conflict is critical.
const DefaultCapacityCriticalPercent = 20.0

// Catalog carries the resource facts the detector needs beyond sessions.
type Catalog struct {
	RoomCapacity   map[string]int
	ClassHeadcount map[string]int
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithRules replaces the remediation rule table.
func WithRules(rules *RuleTable) DetectorOption {
	return func(d *Detector) {
		if rules != nil {
			d.rules = rules
		}
	}
}

// WithCapacityThreshold sets the overage percentage above which capacity conflicts are critical.
func WithCapacityThreshold(percent float64) DetectorOption {
	return func(d *Detector) {
		if percent > 0 {
			d.capacityCritical = percent
		}
	}
}

// WithConcurrency bounds the number of day shards analysed in parallel.
func WithConcurrency(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithCatalog attaches room capacities and class headcounts.
func WithCatalog(catalog Catalog) DetectorOption {
	return func(d *Detector) {
		d.catalog = catalog
	}
}

// Detector finds constraint violations in a session set. It holds no state
// between calls and is safe for concurrent use.
type Detector struct {
	rules            *RuleTable
	capacityCritical float64
	concurrency      int
	catalog          Catalog
}

// NewDetector builds a detector with default rules and thresholds.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		rules:            DefaultRules(),
		capacityCritical: DefaultCapacityCriticalPercent,
		concurrency:      4,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// With returns a copy of the detector with extra options applied.
func (d *Detector) With(opts ...DetectorOption) *Detector {
	clone := *d
	for _, opt := range opts {
		if opt != nil {
			opt(&clone)
		}
	}
	return &clone
}

// Rules exposes the remediation table in use.
func (d *Detector) Rules() *RuleTable { return d.rules }

// Catalog exposes the resource catalog in use.
func (d *Detector) Catalog() Catalog { return d.catalog }

// Detect evaluates every rule over the sessions. Output is deterministic:
// identical input yields identical conflicts in identical order. Conflicts
// carry no identity; the tracker assigns one.
func (d *Detector) Detect(sessions []models.Session, settings models.GenerationSettings) []models.Conflict {
	grid, _ := NewGrid(settings)
	lookup := make(map[string]models.Session, len(sessions))
	for _, s := range sessions {
		lookup[s.ID] = s
	}

	var conflicts []models.Conflict
	for _, col := range hardCollisions(sessions) {
		conflicts = append(conflicts, d.fromCollision(col, lookup, settings))
	}
	for _, s := range sessions {
		if !s.Occupies() {
			continue
		}
		if c, ok := d.capacity(s, settings); ok {
			conflicts = append(conflicts, c)
		}
		if grid != nil {
			if c, ok := d.timing(s, grid, settings); ok {
				conflicts = append(conflicts, c)
			}
		}
	}
	sortConflicts(conflicts)
	return conflicts
}

// DetectAround re-evaluates only the day of the changed session.
func (d *Detector) DetectAround(sessions []models.Session, changed models.Session, settings models.GenerationSettings) []models.Conflict {
	return d.Detect(sessionsOnDays(sessions, changed.Day), settings)
}

// DetectConcurrent shards the session set by day and evaluates the shards in
// parallel. The result equals Detect on the same input.
func (d *Detector) DetectConcurrent(ctx context.Context, sessions []models.Session, settings models.GenerationSettings) ([]models.Conflict, error) {
	byDay := make(map[int][]models.Session)
	for _, s := range sessions {
		byDay[s.Day] = append(byDay[s.Day], s)
	}
	days := make([]int, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Ints(days)

	results := make([][]models.Conflict, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, day := range days {
		i, shard := i, byDay[day]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.Detect(shard, settings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []models.Conflict
	for _, part := range results {
		merged = append(merged, part...)
	}
	sortConflicts(merged)
	return merged, nil
}

func (d *Detector) fromCollision(col collision, lookup map[string]models.Session, settings models.GenerationSettings) models.Conflict {
	var (
		severity models.ConflictSeverity
		detail   models.ConflictDetail
		what     string
	)
	switch col.Type {
	case models.ConflictTypeTeacher:
		severity = models.SeverityCritical
		detail = models.TeacherClash{TeacherID: col.Resource, Day: col.Day, Period: col.Period, SessionIDs: col.SessionIDs}
		what = "Teacher " + col.Resource
	case models.ConflictTypeClass:
		severity = models.SeverityCritical
		detail = models.ClassClash{ClassID: col.Resource, Day: col.Day, Period: col.Period, SessionIDs: col.SessionIDs}
		what = "Class " + col.Resource
	default:
		severity = models.SeverityHigh
		detail = models.RoomClash{RoomID: col.Resource, Day: col.Day, Period: col.Period, SessionIDs: col.SessionIDs}
		what = "Room " + col.Resource
	}

	stakeholders := make(map[string]struct{})
	for _, id := range col.SessionIDs {
		s := lookup[id]
		stakeholders[s.EffectiveTeacherID()] = struct{}{}
		stakeholders[s.ClassID] = struct{}{}
	}

	return d.build(col.Type, severity, col.SessionIDs, detail, settings,
		fmt.Sprintf("%s is booked %d times on %s period %d", what, len(col.SessionIDs), dayLabel(col.Day), col.Period),
		fingerprint(col.Type, col.Resource, col.Day, col.Period, col.SessionIDs),
		keys(stakeholders))
}

func (d *Detector) capacity(s models.Session, settings models.GenerationSettings) (models.Conflict, bool) {
	room := s.Room()
	if room == "" {
		return models.Conflict{}, false
	}
	capacity, ok := d.catalog.RoomCapacity[room]
	if !ok || capacity <= 0 {
		return models.Conflict{}, false
	}
	headcount, ok := d.catalog.ClassHeadcount[s.ClassID]
	if !ok || headcount <= capacity {
		return models.Conflict{}, false
	}

	overage := float64(headcount-capacity) / float64(capacity) * 100
	overage = math.Round(overage*100) / 100
	severity := models.SeverityMedium
	if overage > d.capacityCritical {
		severity = models.SeverityCritical
	}
	detail := models.CapacityOverage{
		SessionID:      s.ID,
		RoomID:         room,
		ClassID:        s.ClassID,
		Capacity:       capacity,
		Headcount:      headcount,
		OveragePercent: overage,
	}
	return d.build(models.ConflictTypeCapacity, severity, []string{s.ID}, detail, settings,
		fmt.Sprintf("Class %s (%d students) exceeds room %s capacity %d by %.0f%%", s.ClassID, headcount, room, capacity, overage),
		fingerprint(models.ConflictTypeCapacity, room, s.Day, s.Period, []string{s.ID}),
		[]string{s.ClassID, s.EffectiveTeacherID()}), true
}

func (d *Detector) timing(s models.Session, grid *Grid, settings models.GenerationSettings) (models.Conflict, bool) {
	detail := models.TimeMismatch{
		SessionID:     s.ID,
		Day:           s.Day,
		Period:        s.Period,
		DeclaredStart: s.StartTime,
		DeclaredEnd:   s.EndTime,
	}
	var message string
	switch {
	case !grid.Assignable(s.Day, s.Period):
		detail.Reason = models.TimeReasonNotAssignable
		message = fmt.Sprintf("Session %s is placed on %s period %d, which is not open for lessons", s.ID, dayLabel(s.Day), s.Period)
	default:
		if s.StartTime == "" && s.EndTime == "" {
			return models.Conflict{}, false
		}
		start, end, _ := grid.Bounds(s.Period)
		if normalizeClock(s.StartTime) == start && normalizeClock(s.EndTime) == end {
			return models.Conflict{}, false
		}
		detail.Reason = models.TimeReasonBoundary
		detail.ExpectedStart = start
		detail.ExpectedEnd = end
		message = fmt.Sprintf("Session %s runs %s-%s but period %d is %s-%s", s.ID, s.StartTime, s.EndTime, s.Period, start, end)
	}
	return d.build(models.ConflictTypeTime, models.SeverityMedium, []string{s.ID}, detail, settings, message,
		fingerprint(models.ConflictTypeTime, detail.Reason, s.Day, s.Period, []string{s.ID}),
		[]string{s.ClassID, s.EffectiveTeacherID()}), true
}

func (d *Detector) build(
	kind models.ConflictType,
	severity models.ConflictSeverity,
	sessionIDs []string,
	detail models.ConflictDetail,
	settings models.GenerationSettings,
	description string,
	print string,
	stakeholders []string,
) models.Conflict {
	suggestions := d.rules.Suggest(kind)
	autoResolvable := false
	for _, s := range suggestions {
		if s.Automatic {
			autoResolvable = true
			break
		}
	}
	c := models.Conflict{
		Type:               kind,
		Severity:           severity,
		SessionIDs:         append(models.StringList(nil), sessionIDs...),
		DetectionMethod:    models.DetectionAutomatic,
		Status:             models.ConflictStatusPending,
		BlocksApproval:     blocksApproval(severity, settings.Policy),
		AutoResolvable:     autoResolvable,
		Description:        description,
		SuggestedSolutions: suggestions,
		Details:            models.ConflictDetails{Detail: detail},
		Stakeholders:       stakeholders,
		Fingerprint:        print,
	}
	c.ImpactScore = ImpactScore(c)
	return c
}

func blocksApproval(severity models.ConflictSeverity, policy models.ApprovalPolicy) bool {
	switch severity {
	case models.SeverityCritical:
		return true
	case models.SeverityHigh:
		return policy.RequireZeroHighSeverity
	default:
		return false
	}
}

func fingerprint(kind models.ConflictType, resource string, day, period int, sessionIDs []string) string {
	ids := append([]string(nil), sessionIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s:%s@%d.%d:%s", kind, resource, day, period, strings.Join(ids, ","))
}

func sortConflicts(conflicts []models.Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func sessionsOnDays(sessions []models.Session, days ...int) []models.Session {
	want := make(map[int]bool, len(days))
	for _, d := range days {
		want[d] = true
	}
	out := make([]models.Session, 0, len(sessions))
	for _, s := range sessions {
		if want[s.Day] {
			out = append(out, s)
		}
	}
	return out
}

func normalizeClock(raw string) string {
	minutes, err := parseClock(raw)
	if err != nil {
		return raw
	}
	return formatClock(minutes)
}

func dayLabel(day int) string {
	if name := DayName(day); name != "" {
		return name
	}
	return fmt.Sprintf("day %d", day)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
