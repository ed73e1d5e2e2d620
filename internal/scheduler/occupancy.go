package scheduler

import (
	"sort"

	"github.com/noah-isme/sma-timetable/internal/models"
)

type cellKey struct {
	ID     string
	Day    int
	Period int
}

// occupancy indexes who holds which slot. Only sessions that occupy their slot are tracked.
type occupancy struct {
	teacher  map[cellKey]string
	class    map[cellKey]string
	room     map[cellKey]string
	classDay map[string]map[int]int
	teacherW map[string]int
}

func newOccupancy() *occupancy {
	return &occupancy{
		teacher:  make(map[cellKey]string),
		class:    make(map[cellKey]string),
		room:     make(map[cellKey]string),
		classDay: make(map[string]map[int]int),
		teacherW: make(map[string]int),
	}
}

func occupancyOf(sessions []models.Session) *occupancy {
	o := newOccupancy()
	for i := range sessions {
		o.reserve(&sessions[i])
	}
	return o
}

func (o *occupancy) free(teacherID, classID, roomID string, day, period int) bool {
	if _, taken := o.teacher[cellKey{teacherID, day, period}]; taken {
		return false
	}
	if _, taken := o.class[cellKey{classID, day, period}]; taken {
		return false
	}
	if roomID != "" {
		if _, taken := o.room[cellKey{roomID, day, period}]; taken {
			return false
		}
	}
	return true
}

func (o *occupancy) reserve(s *models.Session) {
	if !s.Occupies() {
		return
	}
	o.claim(o.teacher, cellKey{s.EffectiveTeacherID(), s.Day, s.Period}, s.ID)
	o.claim(o.class, cellKey{s.ClassID, s.Day, s.Period}, s.ID)
	if room := s.Room(); room != "" {
		o.claim(o.room, cellKey{room, s.Day, s.Period}, s.ID)
	}
	if o.classDay[s.ClassID] == nil {
		o.classDay[s.ClassID] = make(map[int]int)
	}
	o.classDay[s.ClassID][s.Day]++
	o.teacherW[s.EffectiveTeacherID()]++
}

func (o *occupancy) release(s *models.Session) {
	if !s.Occupies() {
		return
	}
	o.unclaim(o.teacher, cellKey{s.EffectiveTeacherID(), s.Day, s.Period}, s.ID)
	o.unclaim(o.class, cellKey{s.ClassID, s.Day, s.Period}, s.ID)
	if room := s.Room(); room != "" {
		o.unclaim(o.room, cellKey{room, s.Day, s.Period}, s.ID)
	}
	if days := o.classDay[s.ClassID]; days != nil && days[s.Day] > 0 {
		days[s.Day]--
	}
	if o.teacherW[s.EffectiveTeacherID()] > 0 {
		o.teacherW[s.EffectiveTeacherID()]--
	}
}

// claim keeps the first holder so colliding inputs do not mask each other on release.
func (o *occupancy) claim(index map[cellKey]string, key cellKey, id string) {
	if _, exists := index[key]; !exists {
		index[key] = id
	}
}

func (o *occupancy) unclaim(index map[cellKey]string, key cellKey, id string) {
	if index[key] == id {
		delete(index, key)
	}
}

// collision is a group of occupying sessions sharing one resource in one slot.
type collision struct {
	Type       models.ConflictType
	Resource   string
	Day        int
	Period     int
	SessionIDs []string
}

// hardCollisions groups occupying sessions by (day, period) and reports every
// teacher, class and room that is held more than once.
func hardCollisions(sessions []models.Session) []collision {
	buckets := make(map[slotKey][]models.Session)
	for _, s := range sessions {
		if !s.Occupies() {
			continue
		}
		key := slotKey{Day: s.Day, Period: s.Period}
		buckets[key] = append(buckets[key], s)
	}

	keys := make([]slotKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day == keys[j].Day {
			return keys[i].Period < keys[j].Period
		}
		return keys[i].Day < keys[j].Day
	})

	var out []collision
	for _, key := range keys {
		bucket := buckets[key]
		if len(bucket) < 2 {
			continue
		}
		out = append(out, groupBy(bucket, key, models.ConflictTypeTeacher, func(s models.Session) string { return s.EffectiveTeacherID() })...)
		out = append(out, groupBy(bucket, key, models.ConflictTypeClass, func(s models.Session) string { return s.ClassID })...)
		out = append(out, groupBy(bucket, key, models.ConflictTypeRoom, func(s models.Session) string { return s.Room() })...)
	}
	return out
}

func groupBy(bucket []models.Session, key slotKey, kind models.ConflictType, resource func(models.Session) string) []collision {
	groups := make(map[string][]string)
	for _, s := range bucket {
		id := resource(s)
		if id == "" {
			continue
		}
		groups[id] = append(groups[id], s.ID)
	}
	names := make([]string, 0, len(groups))
	for name, ids := range groups {
		if len(ids) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]collision, 0, len(names))
	for _, name := range names {
		ids := append([]string(nil), groups[name]...)
		sort.Strings(ids)
		out = append(out, collision{Type: kind, Resource: name, Day: key.Day, Period: key.Period, SessionIDs: ids})
	}
	return out
}
