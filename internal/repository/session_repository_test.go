package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

func TestSessionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(columnsOf(sessionColumns)).
		AddRow("s1", "sched-1", "load-1", "teacher-a", "math", "9A", nil, 1, 2, "07:45", "08:30", "scheduled", "generated", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE schedule_id = $1 AND day = $2 AND (teacher_id = $3 OR substitute_teacher_id = $3) ORDER BY day ASC, period ASC, id ASC")).
		WithArgs("sched-1", 1, "teacher-a").
		WillReturnRows(rows)

	sessions, err := repo.List(context.Background(), nil, models.SessionFilter{ScheduleID: "sched-1", Day: 1, TeacherID: "teacher-a"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "load-1", sessions[0].LoadID())
	assert.Equal(t, models.SessionSourceGenerated, sessions[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryInsertBatchDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	batch := []models.Session{{ScheduleID: "sched-1", TeacherID: "t", SubjectID: "s", ClassID: "c", Day: 1, Period: 1}}
	require.NoError(t, repo.InsertBatch(context.Background(), nil, batch))
	assert.NotEmpty(t, batch[0].ID)
	assert.Equal(t, models.SessionStatusScheduled, batch[0].Status)
	assert.Equal(t, models.SessionSourceManual, batch[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteGenerated(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE schedule_id = $1 AND source = $2")).
		WithArgs("sched-1", string(models.SessionSourceGenerated)).
		WillReturnResult(sqlmock.NewResult(0, 7))

	removed, err := repo.DeleteGenerated(context.Background(), nil, "sched-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE schedule_id = $1 AND id = $2")).
		WithArgs("sched-1", "s404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "sched-1", "s404"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
