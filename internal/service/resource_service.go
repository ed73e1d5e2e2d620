package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type resourceRepository interface {
	catalogReader
	UpsertRooms(ctx context.Context, exec sqlx.ExtContext, rooms []models.Room) error
	UpsertClasses(ctx context.Context, exec sqlx.ExtContext, classes []models.ClassGroup) error
}

// ResourceService maintains room capacities and class headcounts used by capacity checks.
type ResourceService struct {
	repo      resourceRepository
	validator *validator.Validate
}

// NewResourceService constructs the service.
func NewResourceService(repo resourceRepository, validate *validator.Validate) *ResourceService {
	if validate == nil {
		validate = validator.New()
	}
	return &ResourceService{repo: repo, validator: validate}
}

// Rooms lists the rooms of an institution.
func (s *ResourceService) Rooms(ctx context.Context, institutionID string) ([]models.Room, error) {
	rooms, err := s.repo.ListRooms(ctx, nil, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, nil
}

// PutRooms inserts or updates rooms of one institution.
func (s *ResourceService) PutRooms(ctx context.Context, req dto.RoomsRequest) ([]models.Room, error) {
	for i := range req.Rooms {
		req.Rooms[i].InstitutionID = req.InstitutionID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rooms payload")
	}
	if err := s.repo.UpsertRooms(ctx, nil, req.Rooms); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store rooms")
	}
	return req.Rooms, nil
}

// Classes lists the class groups of an institution.
func (s *ResourceService) Classes(ctx context.Context, institutionID string) ([]models.ClassGroup, error) {
	classes, err := s.repo.ListClasses(ctx, nil, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class groups")
	}
	return classes, nil
}

// PutClasses inserts or updates class groups of one institution.
func (s *ResourceService) PutClasses(ctx context.Context, req dto.ClassesRequest) ([]models.ClassGroup, error) {
	for i := range req.Classes {
		req.Classes[i].InstitutionID = req.InstitutionID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid classes payload")
	}
	if err := s.repo.UpsertClasses(ctx, nil, req.Classes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store class groups")
	}
	return req.Classes, nil
}
