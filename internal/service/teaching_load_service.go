package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type teachingLoadRepository interface {
	List(ctx context.Context, exec sqlx.ExtContext, filter models.TeachingLoadFilter) ([]models.TeachingLoad, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, load *models.TeachingLoad) error
	Delete(ctx context.Context, id string) error
}

// TeachingLoadService maintains the weekly-hour catalog consumed by the generator.
type TeachingLoadService struct {
	repo      teachingLoadRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeachingLoadService constructs the service.
func NewTeachingLoadService(repo teachingLoadRepository, validate *validator.Validate, logger *zap.Logger) *TeachingLoadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeachingLoadService{repo: repo, validator: validate, logger: logger}
}

// List returns loads matching the query.
func (s *TeachingLoadService) List(ctx context.Context, query dto.TeachingLoadQuery) ([]models.TeachingLoad, error) {
	loads, err := s.repo.List(ctx, nil, models.TeachingLoadFilter{
		InstitutionID:    query.InstitutionID,
		AcademicPeriodID: query.AcademicPeriodID,
		TeacherID:        query.TeacherID,
		ClassID:          query.ClassID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teaching loads")
	}
	return loads, nil
}

// Upsert stores a load. A load with the same teacher, subject and class in the
// period is updated in place.
func (s *TeachingLoadService) Upsert(ctx context.Context, load models.TeachingLoad) (*models.TeachingLoad, error) {
	if load.PriorityLevel == 0 {
		load.PriorityLevel = 5
	}
	if load.PreferredConsecutiveHours == 0 {
		load.PreferredConsecutiveHours = 1
	}
	if err := s.validator.Struct(load); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teaching load payload")
	}
	if load.IdealDistribution.Total() > load.WeeklyHours {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("ideal distribution totals %d lessons, more than the %d weekly hours", load.IdealDistribution.Total(), load.WeeklyHours))
	}
	if err := s.repo.Upsert(ctx, nil, &load); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store teaching load")
	}
	return &load, nil
}

// Delete removes a load.
func (s *TeachingLoadService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teaching load not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teaching load")
	}
	return nil
}
