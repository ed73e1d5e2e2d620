package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func TestTeachingLoadServiceUpsertAppliesDefaults(t *testing.T) {
	repo := &loadStoreStub{}
	svc := NewTeachingLoadService(repo, nil, nil)

	load := newLoad("", "teacher-1", "math", "class-1", 4)
	load.PriorityLevel = 0
	load.PreferredConsecutiveHours = 0

	saved, err := svc.Upsert(context.Background(), load)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 5, saved.PriorityLevel)
	assert.Equal(t, 1, saved.PreferredConsecutiveHours)

	items, err := svc.List(context.Background(), dto.TeachingLoadQuery{InstitutionID: "inst-1"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestTeachingLoadServiceRejectsInvalidLoads(t *testing.T) {
	svc := NewTeachingLoadService(&loadStoreStub{}, nil, nil)

	missing := newLoad("load-1", "", "math", "class-1", 2)
	_, err := svc.Upsert(context.Background(), missing)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	overflow := newLoad("load-1", "teacher-1", "math", "class-1", 2)
	overflow.IdealDistribution = models.DayAllocations{{Day: 1, LessonCount: 2}, {Day: 2, LessonCount: 1}}
	_, err = svc.Upsert(context.Background(), overflow)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestTeachingLoadServiceDeleteMissing(t *testing.T) {
	svc := NewTeachingLoadService(&loadStoreStub{}, nil, nil)

	err := svc.Delete(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}
