package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func intRef(v int) *int { return &v }

func strRef(v string) *string { return &v }

func baseSettings() models.GenerationSettings {
	return models.GenerationSettings{
		InstitutionID:         "inst-1",
		WorkingDays:           models.Days{1, 2, 3, 4, 5},
		DailyPeriods:          6,
		PeriodDurationMinutes: 45,
		BreakPeriods:          models.Periods{3},
		LunchBreakPeriod:      intRef(4),
		BreakDurationMinutes:  15,
		LunchDurationMinutes:  45,
		FirstPeriodStart:      "07:00",
	}
}

func newLoad(id, teacher, subject, class string, hours int) models.TeachingLoad {
	return models.TeachingLoad{
		ID:                        id,
		InstitutionID:             "inst-1",
		AcademicPeriodID:          "term-1",
		TeacherID:                 teacher,
		SubjectID:                 subject,
		ClassID:                   class,
		WeeklyHours:               hours,
		PriorityLevel:             5,
		PreferredConsecutiveHours: 1,
	}
}

func draftSchedule(id string) models.Schedule {
	return models.Schedule{
		ID:               id,
		InstitutionID:    "inst-1",
		AcademicPeriodID: "term-1",
		Name:             "Timetable " + id,
		Status:           models.ScheduleStatusDraft,
	}
}

func manualSession(id, teacher, class string, day, period int) models.Session {
	return models.Session{
		ID:         id,
		ScheduleID: "sched-1",
		TeacherID:  teacher,
		SubjectID:  "subject-" + id,
		ClassID:    class,
		Day:        day,
		Period:     period,
		Status:     models.SessionStatusScheduled,
		Source:     models.SessionSourceManual,
	}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	return appErr.Code
}

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type scheduleStoreStub struct {
	mu        sync.Mutex
	items     map[string]models.Schedule
	updates   []models.Schedule
	updateErr error
}

func newScheduleStore(schedules ...models.Schedule) *scheduleStoreStub {
	store := &scheduleStoreStub{items: make(map[string]models.Schedule)}
	for _, s := range schedules {
		store.items[s.ID] = s
	}
	return store
}

func (s *scheduleStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule.ID == "" {
		schedule.ID = fmt.Sprintf("sched-%d", len(s.items)+1)
	}
	s.items[schedule.ID] = *schedule
	return nil
}

func (s *scheduleStoreStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Schedule
	for _, item := range s.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *scheduleStoreStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (s *scheduleStoreStub) FindActive(ctx context.Context, exec sqlx.ExtContext, institutionID, academicPeriodID string) (*models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.Status == models.ScheduleStatusActive && item.InstitutionID == institutionID && item.AcademicPeriodID == academicPeriodID {
			copied := item
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleStoreStub) UpdateLifecycle(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.items[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	s.items[schedule.ID] = *schedule
	s.updates = append(s.updates, *schedule)
	return nil
}

func (s *scheduleStoreStub) get(id string) models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

type sessionStoreStub struct {
	mu        sync.Mutex
	items     map[string]models.Session
	listCalls int
	insertErr error
}

func newSessionStore(sessions ...models.Session) *sessionStoreStub {
	store := &sessionStoreStub{items: make(map[string]models.Session)}
	for _, s := range sessions {
		store.items[s.ID] = s
	}
	return store
}

func (s *sessionStoreStub) List(ctx context.Context, exec sqlx.ExtContext, filter models.SessionFilter) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []models.Session
	for _, item := range s.items {
		if item.ScheduleID != filter.ScheduleID {
			continue
		}
		if filter.Day != 0 && item.Day != filter.Day {
			continue
		}
		if filter.TeacherID != "" && item.TeacherID != filter.TeacherID && item.EffectiveTeacherID() != filter.TeacherID {
			continue
		}
		if filter.ClassID != "" && item.ClassID != filter.ClassID {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *sessionStoreStub) FindByID(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.ScheduleID != scheduleID {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (s *sessionStoreStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, item := range sessions {
		s.items[item.ID] = item
	}
	return nil
}

func (s *sessionStoreStub) Update(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[session.ID]; !ok {
		return sql.ErrNoRows
	}
	s.items[session.ID] = *session
	return nil
}

func (s *sessionStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, scheduleID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *sessionStoreStub) DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, scheduleID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, item := range s.items {
		if item.ScheduleID == scheduleID && item.Source == models.SessionSourceGenerated {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func (s *sessionStoreStub) all() []models.Session {
	out, _ := s.List(context.Background(), nil, models.SessionFilter{ScheduleID: "sched-1"})
	return out
}

func (s *sessionStoreStub) get(id string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

type conflictStoreStub struct {
	mu    sync.Mutex
	items map[string]models.Conflict
	order []string
}

func newConflictStore(conflicts ...models.Conflict) *conflictStoreStub {
	store := &conflictStoreStub{items: make(map[string]models.Conflict)}
	for _, c := range conflicts {
		store.items[c.ID] = c
		store.order = append(store.order, c.ID)
	}
	return store
}

func (s *conflictStoreStub) List(ctx context.Context, exec sqlx.ExtContext, filter models.ConflictFilter) ([]models.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conflict
	for _, id := range s.order {
		c := s.items[id]
		if c.ScheduleID != filter.ScheduleID {
			continue
		}
		if filter.OpenOnly && !c.Open() {
			continue
		}
		if filter.BlockingOnly && !c.BlocksApproval {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *conflictStoreStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *conflictStoreStub) Insert(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[conflict.ID] = *conflict
	s.order = append(s.order, conflict.ID)
	return nil
}

func (s *conflictStoreStub) UpdateState(ctx context.Context, exec sqlx.ExtContext, conflict *models.Conflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[conflict.ID]; !ok {
		return sql.ErrNoRows
	}
	s.items[conflict.ID] = *conflict
	return nil
}

func (s *conflictStoreStub) all() []models.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conflict, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

type settingsStoreStub struct {
	mu    sync.Mutex
	items map[string]models.GenerationSettings
}

func newSettingsStore(settings ...models.GenerationSettings) *settingsStoreStub {
	store := &settingsStoreStub{items: make(map[string]models.GenerationSettings)}
	for _, s := range settings {
		store.items[s.InstitutionID] = s
	}
	return store
}

func (s *settingsStoreStub) Get(ctx context.Context, exec sqlx.ExtContext, institutionID string) (*models.GenerationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[institutionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (s *settingsStoreStub) Upsert(ctx context.Context, exec sqlx.ExtContext, settings *models.GenerationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[settings.InstitutionID] = *settings
	return nil
}

type loadStoreStub struct {
	mu    sync.Mutex
	items []models.TeachingLoad
}

func (s *loadStoreStub) List(ctx context.Context, exec sqlx.ExtContext, filter models.TeachingLoadFilter) ([]models.TeachingLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TeachingLoad
	for _, load := range s.items {
		if filter.InstitutionID != "" && load.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.AcademicPeriodID != "" && load.AcademicPeriodID != filter.AcademicPeriodID {
			continue
		}
		out = append(out, load)
	}
	return out, nil
}

func (s *loadStoreStub) Upsert(ctx context.Context, exec sqlx.ExtContext, load *models.TeachingLoad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if load.ID == "" {
		load.ID = fmt.Sprintf("load-%d", len(s.items)+1)
	}
	s.items = append(s.items, *load)
	return nil
}

func (s *loadStoreStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, load := range s.items {
		if load.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type catalogStub struct {
	rooms   []models.Room
	classes []models.ClassGroup
}

func (c *catalogStub) ListRooms(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.Room, error) {
	return c.rooms, nil
}

func (c *catalogStub) ListClasses(ctx context.Context, exec sqlx.ExtContext, institutionID string) ([]models.ClassGroup, error) {
	return c.classes, nil
}

func (c *catalogStub) UpsertRooms(ctx context.Context, exec sqlx.ExtContext, rooms []models.Room) error {
	c.rooms = append(c.rooms, rooms...)
	return nil
}

func (c *catalogStub) UpsertClasses(ctx context.Context, exec sqlx.ExtContext, classes []models.ClassGroup) error {
	c.classes = append(c.classes, classes...)
	return nil
}

type auditStub struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *auditStub) Create(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type publisherStub struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *publisherStub) Publish(jobType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, jobType)
	return nil
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type cacheRepoStub struct {
	mu      sync.Mutex
	items   map[string][]byte
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{items: make(map[string][]byte)}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.items {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(c.items, key)
		}
	}
	c.deleted = append(c.deleted, pattern)
	return nil
}
