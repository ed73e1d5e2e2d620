package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context, exec sqlx.ExtContext, institutionID string) (*models.GenerationSettings, error)
	Upsert(ctx context.Context, exec sqlx.ExtContext, settings *models.GenerationSettings) error
}

// SettingsService stores the period grid and generation preferences of an institution.
type SettingsService struct {
	repo   settingsRepository
	audit  auditLogger
	logger *zap.Logger
}

// NewSettingsService constructs the service.
func NewSettingsService(repo settingsRepository, audit auditLogger, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, audit: audit, logger: logger}
}

// Get returns the settings of an institution.
func (s *SettingsService) Get(ctx context.Context, institutionID string) (*models.GenerationSettings, error) {
	settings, err := s.repo.Get(ctx, nil, institutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "generation settings not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation settings")
	}
	return settings, nil
}

// Put validates and replaces the settings. Every violation is reported at once.
func (s *SettingsService) Put(ctx context.Context, institutionID string, settings models.GenerationSettings, actor string) (*models.GenerationSettings, error) {
	settings.InstitutionID = strings.TrimSpace(institutionID)
	settings.Preferences = settings.Preferences.WithDefaults()
	if err := scheduler.ValidateSettings(settings); err != nil {
		return nil, mapEngineError(err, "invalid generation settings")
	}
	if _, err := scheduler.NewGrid(settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	previous, err := s.repo.Get(ctx, nil, settings.InstitutionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load generation settings")
	}
	if err := s.repo.Upsert(ctx, nil, &settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generation settings")
	}

	var oldValue interface{}
	if previous != nil {
		oldValue = previous
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionSettingsUpdate, "generation_settings", settings.InstitutionID, oldValue, settings)
	return &settings, nil
}
