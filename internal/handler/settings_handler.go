package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type settingsManager interface {
	Get(ctx context.Context, institutionID string) (*models.GenerationSettings, error)
	Put(ctx context.Context, institutionID string, settings models.GenerationSettings, actor string) (*models.GenerationSettings, error)
}

// SettingsHandler exposes the period grid and generation preferences.
type SettingsHandler struct {
	service settingsManager
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// Get godoc
// @Summary Get generation settings
// @Tags Settings
// @Produce json
// @Param institutionId path string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /settings/{institutionId} [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.service.Get(c.Request.Context(), c.Param("institutionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// Put godoc
// @Summary Replace generation settings
// @Description All violations are reported together in error.details.
// @Tags Settings
// @Accept json
// @Produce json
// @Param institutionId path string true "Institution ID"
// @Param payload body models.GenerationSettings true "Settings"
// @Success 200 {object} response.Envelope
// @Router /settings/{institutionId} [put]
func (h *SettingsHandler) Put(c *gin.Context) {
	var settings models.GenerationSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	saved, err := h.service.Put(c.Request.Context(), c.Param("institutionId"), settings, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved, nil)
}
