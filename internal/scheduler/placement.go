package scheduler

import (
	"sort"

	"github.com/noah-isme/sma-timetable/internal/models"
)

type subjectHold struct {
	sessionID string
	subjectID string
}

// placement is the mutable state of one generation pass.
type placement struct {
	grid       *Grid
	prefs      models.GenerationPreferences
	opts       Options
	occ        *occupancy
	subjectAt  map[cellKey]subjectHold
	teacherDay map[string]map[int]int
	loadDay    map[string]map[int]int
	loads      map[string]models.TeachingLoad
	generated  []*models.Session
}

type candidate struct {
	day    int
	period int
	score  int
}

type frame struct {
	cands []candidate
	next  int
}

func newPlacement(grid *Grid, prefs models.GenerationPreferences, opts Options, existing []models.Session) *placement {
	p := &placement{
		grid:       grid,
		prefs:      prefs,
		opts:       opts,
		occ:        newOccupancy(),
		subjectAt:  make(map[cellKey]subjectHold),
		teacherDay: make(map[string]map[int]int),
		loadDay:    make(map[string]map[int]int),
		loads:      make(map[string]models.TeachingLoad),
	}
	for i := range existing {
		p.track(&existing[i])
	}
	return p
}

func (p *placement) track(s *models.Session) {
	if !s.Occupies() {
		return
	}
	p.occ.reserve(s)
	key := cellKey{s.ClassID, s.Day, s.Period}
	if _, held := p.subjectAt[key]; !held {
		p.subjectAt[key] = subjectHold{sessionID: s.ID, subjectID: s.SubjectID}
	}
	bump(p.teacherDay, s.EffectiveTeacherID(), s.Day, 1)
	if id := s.LoadID(); id != "" {
		bump(p.loadDay, id, s.Day, 1)
	}
}

func (p *placement) untrack(s *models.Session) {
	if !s.Occupies() {
		return
	}
	p.occ.release(s)
	key := cellKey{s.ClassID, s.Day, s.Period}
	if p.subjectAt[key].sessionID == s.ID {
		delete(p.subjectAt, key)
	}
	bump(p.teacherDay, s.EffectiveTeacherID(), s.Day, -1)
	if id := s.LoadID(); id != "" {
		bump(p.loadDay, id, s.Day, -1)
	}
}

func bump(index map[string]map[int]int, id string, day, delta int) {
	if index[id] == nil {
		index[id] = make(map[int]int)
	}
	index[id][day] += delta
	if index[id][day] < 0 {
		index[id][day] = 0
	}
}

func loadRoom(load models.TeachingLoad) string {
	if load.RoomID == nil {
		return ""
	}
	return *load.RoomID
}

// fits reports whether the load may take the cell. Hard constraints always
// apply; strict adds every soft preference.
func (p *placement) fits(load models.TeachingLoad, day, period int, strict bool) bool {
	if !p.grid.Assignable(day, period) {
		return false
	}
	if !p.occ.free(load.TeacherID, load.ClassID, loadRoom(load), day, period) {
		return false
	}
	if (strict || p.prefs.PrioritizeTeacherPreferences) && load.UnavailablePeriods.Contains(day, period) {
		return false
	}
	if !strict {
		return true
	}
	return p.subjectRulesHold(load.ClassID, load.SubjectID, day, period)
}

func (p *placement) sameSubject(classID, subjectID string, day, period int) bool {
	hold, ok := p.subjectAt[cellKey{classID, day, period}]
	return ok && hold.subjectID == subjectID
}

// subjectRulesHold checks the consecutive-run cap and the minimum break
// between separate runs of one subject for one class.
func (p *placement) subjectRulesHold(classID, subjectID string, day, period int) bool {
	lo, hi := period, period
	for lo-1 >= 1 && p.sameSubject(classID, subjectID, day, lo-1) {
		lo--
	}
	for hi+1 <= p.grid.Periods() && p.sameSubject(classID, subjectID, day, hi+1) {
		hi++
	}
	if hi-lo+1 > p.prefs.MaxConsecutive() {
		return false
	}
	for q := 1; q <= p.grid.Periods(); q++ {
		if q >= lo && q <= hi {
			continue
		}
		if !p.sameSubject(classID, subjectID, day, q) {
			continue
		}
		gap := lo - q - 1
		if q > hi {
			gap = q - hi - 1
		}
		if gap < p.prefs.MinBreak() {
			return false
		}
	}
	return true
}

func distributionQuota(load models.TeachingLoad, day int) int {
	for _, entry := range load.IdealDistribution {
		if entry.Day == day {
			return entry.LessonCount
		}
	}
	return 0
}

// score ranks a legal cell for the load, lower is better.
func (p *placement) score(load models.TeachingLoad, day, period int) int {
	score := 0
	daily := p.loadDay[load.ID][day]

	if len(load.IdealDistribution) > 0 {
		if daily < distributionQuota(load, day) {
			score -= 100
		} else {
			score += 50
		}
	} else if daily >= load.PreferredConsecutiveHours {
		score += 40 * (daily - load.PreferredConsecutiveHours + 1)
	}

	if load.PreferredConsecutiveHours > 1 && daily > 0 {
		if p.sameSubject(load.ClassID, load.SubjectID, day, period-1) || p.sameSubject(load.ClassID, load.SubjectID, day, period+1) {
			score -= 20
		} else {
			score += 10
		}
	}

	if p.prefs.PreferMorningCoreSubjects && load.IsCoreSubject {
		if period <= p.opts.MorningCutoff {
			score += period
		} else {
			score += period + 10
		}
	}

	if p.prefs.MinimizeGaps && p.occ.classDay[load.ClassID][day] > 0 && !p.classAdjacent(load.ClassID, day, period) {
		score += 5
	}

	if p.prefs.BalanceDailyLoad {
		score += p.occ.classDay[load.ClassID][day]*3 + p.teacherDay[load.TeacherID][day]*2
	}
	return score
}

func (p *placement) classAdjacent(classID string, day, period int) bool {
	if _, ok := p.occ.class[cellKey{classID, day, period - 1}]; ok {
		return true
	}
	_, ok := p.occ.class[cellKey{classID, day, period + 1}]
	return ok
}

func (p *placement) candidates(load models.TeachingLoad, strict bool) []candidate {
	var out []candidate
	for _, slot := range p.grid.AssignableSlots() {
		if !p.fits(load, slot.Day, slot.Period, strict) {
			continue
		}
		out = append(out, candidate{day: slot.Day, period: slot.Period, score: p.score(load, slot.Day, slot.Period)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score < out[j].score })
	return out
}

func (p *placement) place(load models.TeachingLoad, day, period int) *models.Session {
	loadID := load.ID
	s := &models.Session{
		ID:             p.opts.NewID(),
		TeachingLoadID: &loadID,
		TeacherID:      load.TeacherID,
		SubjectID:      load.SubjectID,
		ClassID:        load.ClassID,
		Day:            day,
		Period:         period,
		Status:         models.SessionStatusScheduled,
		Source:         models.SessionSourceGenerated,
	}
	if load.RoomID != nil {
		room := *load.RoomID
		s.RoomID = &room
	}
	p.track(s)
	p.generated = append(p.generated, s)
	return s
}

func (p *placement) unplace(s *models.Session) {
	p.untrack(s)
	for i := len(p.generated) - 1; i >= 0; i-- {
		if p.generated[i] == s {
			p.generated = append(p.generated[:i], p.generated[i+1:]...)
			return
		}
	}
}

// placeStrict places up to hours unit sessions with every soft preference on,
// backtracking over an explicit stack of candidate frames. When the tree or
// the budget runs out the deepest partial placement seen is kept. It returns
// the number placed and the number of backtracks spent.
func (p *placement) placeStrict(load models.TeachingLoad, hours int) (int, int) {
	var (
		stack      []frame
		placed     []*models.Session
		best       []candidate
		backtracks int
	)
	for len(placed) < hours {
		if len(stack) == len(placed) {
			stack = append(stack, frame{cands: p.candidates(load, true)})
		}
		top := &stack[len(stack)-1]
		if top.next < len(top.cands) {
			c := top.cands[top.next]
			top.next++
			placed = append(placed, p.place(load, c.day, c.period))
			if len(placed) > len(best) {
				best = cellsOf(placed)
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if len(placed) == 0 || backtracks >= p.opts.BacktrackBudget {
			break
		}
		backtracks++
		last := placed[len(placed)-1]
		placed = placed[:len(placed)-1]
		p.unplace(last)
	}

	if len(placed) < len(best) {
		for i := len(placed) - 1; i >= 0; i-- {
			p.unplace(placed[i])
		}
		placed = placed[:0]
		for _, c := range best {
			placed = append(placed, p.place(load, c.day, c.period))
		}
	}
	return len(placed), backtracks
}

func cellsOf(sessions []*models.Session) []candidate {
	out := make([]candidate, len(sessions))
	for i, s := range sessions {
		out[i] = candidate{day: s.Day, period: s.Period}
	}
	return out
}

// placeRelaxed greedily places the remaining hours with hard constraints only.
func (p *placement) placeRelaxed(load models.TeachingLoad, hours int) int {
	placed := 0
	for placed < hours {
		cands := p.candidates(load, false)
		if len(cands) == 0 {
			break
		}
		p.place(load, cands[0].day, cands[0].period)
		placed++
	}
	return placed
}

func (p *placement) withinQuota(load models.TeachingLoad, day int) bool {
	if len(load.IdealDistribution) == 0 {
		return true
	}
	return p.loadDay[load.ID][day] < distributionQuota(load, day)
}

func (p *placement) classVariance(classID string) float64 {
	days := p.grid.Days()
	if len(days) == 0 {
		return 0
	}
	counts := p.occ.classDay[classID]
	total := 0
	for _, day := range days {
		total += counts[day]
	}
	mean := float64(total) / float64(len(days))
	variance := 0.0
	for _, day := range days {
		diff := float64(counts[day]) - mean
		variance += diff * diff
	}
	return variance / float64(len(days))
}

// balance swaps pairs of generated sessions of one teacher across days while
// the summed per-day variance of the two classes strictly drops.
func (p *placement) balance() int {
	swaps, attempts := 0, 0
	for attempts < p.opts.MaxSwapAttempts {
		improved := false
		for i := 0; i < len(p.generated) && attempts < p.opts.MaxSwapAttempts; i++ {
			for j := i + 1; j < len(p.generated) && attempts < p.opts.MaxSwapAttempts; j++ {
				a, b := p.generated[i], p.generated[j]
				if a.TeacherID != b.TeacherID || a.Day == b.Day || a.ClassID == b.ClassID {
					continue
				}
				attempts++
				if p.trySwap(a, b) {
					swaps++
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return swaps
}

func (p *placement) trySwap(a, b *models.Session) bool {
	const epsilon = 1e-9
	before := p.classVariance(a.ClassID) + p.classVariance(b.ClassID)
	loadA, loadB := p.loads[a.LoadID()], p.loads[b.LoadID()]
	aDay, aPeriod, bDay, bPeriod := a.Day, a.Period, b.Day, b.Period

	p.untrack(a)
	p.untrack(b)
	restore := func() {
		p.untrack(a)
		p.untrack(b)
		a.Day, a.Period = aDay, aPeriod
		b.Day, b.Period = bDay, bPeriod
		p.track(a)
		p.track(b)
	}

	if !p.fits(loadA, bDay, bPeriod, true) || !p.withinQuota(loadA, bDay) {
		p.track(a)
		p.track(b)
		return false
	}
	a.Day, a.Period = bDay, bPeriod
	p.track(a)
	if !p.fits(loadB, aDay, aPeriod, true) || !p.withinQuota(loadB, aDay) {
		restore()
		return false
	}
	b.Day, b.Period = aDay, aPeriod
	p.track(b)

	after := p.classVariance(a.ClassID) + p.classVariance(b.ClassID)
	if after < before-epsilon {
		return true
	}
	restore()
	return false
}

// repairGaps slides a class's last generated lesson of a day into the first
// hole of that day. Each move strictly shrinks the class's gap count.
func (p *placement) repairGaps() int {
	moves := 0
	for moves < p.opts.GapRepairIterations && p.repairOneGap() {
		moves++
	}
	return moves
}

func (p *placement) repairOneGap() bool {
	classes := make(map[string]struct{})
	for _, s := range p.generated {
		classes[s.ClassID] = struct{}{}
	}
	for _, classID := range keys(classes) {
		for _, day := range p.grid.Days() {
			periods := p.classPeriods(classID, day)
			if len(periods) < 2 {
				continue
			}
			last := p.generatedAt(classID, day, periods[len(periods)-1])
			if last == nil {
				continue
			}
			load := p.loads[last.LoadID()]
			for hole := periods[0] + 1; hole < periods[len(periods)-1]; hole++ {
				if !p.grid.Assignable(day, hole) {
					continue
				}
				if _, taken := p.occ.class[cellKey{classID, day, hole}]; taken {
					continue
				}
				p.untrack(last)
				if p.fits(load, day, hole, true) {
					last.Period = hole
					p.track(last)
					return true
				}
				p.track(last)
			}
		}
	}
	return false
}

func (p *placement) classPeriods(classID string, day int) []int {
	var periods []int
	for period := 1; period <= p.grid.Periods(); period++ {
		if _, ok := p.occ.class[cellKey{classID, day, period}]; ok {
			periods = append(periods, period)
		}
	}
	return periods
}

func (p *placement) generatedAt(classID string, day, period int) *models.Session {
	for _, s := range p.generated {
		if s.ClassID == classID && s.Day == day && s.Period == period {
			return s
		}
	}
	return nil
}
