package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type teachingLoadCatalog interface {
	List(ctx context.Context, query dto.TeachingLoadQuery) ([]models.TeachingLoad, error)
	Upsert(ctx context.Context, load models.TeachingLoad) (*models.TeachingLoad, error)
	Delete(ctx context.Context, id string) error
}

type resourceCatalog interface {
	Rooms(ctx context.Context, institutionID string) ([]models.Room, error)
	PutRooms(ctx context.Context, req dto.RoomsRequest) ([]models.Room, error)
	Classes(ctx context.Context, institutionID string) ([]models.ClassGroup, error)
	PutClasses(ctx context.Context, req dto.ClassesRequest) ([]models.ClassGroup, error)
}

// CatalogHandler serves the inputs of the generator: teaching loads, rooms and class groups.
type CatalogHandler struct {
	loads     teachingLoadCatalog
	resources resourceCatalog
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(loads *service.TeachingLoadService, resources *service.ResourceService) *CatalogHandler {
	return &CatalogHandler{loads: loads, resources: resources}
}

// ListLoads godoc
// @Summary List teaching loads
// @Tags Catalog
// @Produce json
// @Param institution_id query string false "Filter by institution"
// @Param academic_period_id query string false "Filter by academic period"
// @Param teacher_id query string false "Filter by teacher"
// @Param class_id query string false "Filter by class"
// @Success 200 {object} response.Envelope
// @Router /teaching-loads [get]
func (h *CatalogHandler) ListLoads(c *gin.Context) {
	var query dto.TeachingLoadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	loads, err := h.loads.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loads, nil)
}

// UpsertLoad godoc
// @Summary Create or update a teaching load
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body models.TeachingLoad true "Teaching load"
// @Success 200 {object} response.Envelope
// @Router /teaching-loads [post]
func (h *CatalogHandler) UpsertLoad(c *gin.Context) {
	var load models.TeachingLoad
	if err := c.ShouldBindJSON(&load); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	saved, err := h.loads.Upsert(c.Request.Context(), load)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved, nil)
}

// DeleteLoad godoc
// @Summary Delete a teaching load
// @Tags Catalog
// @Param id path string true "Teaching load ID"
// @Success 204
// @Router /teaching-loads/{id} [delete]
func (h *CatalogHandler) DeleteLoad(c *gin.Context) {
	if err := h.loads.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rooms godoc
// @Summary List rooms
// @Tags Catalog
// @Produce json
// @Param institution_id query string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *CatalogHandler) Rooms(c *gin.Context) {
	institutionID, ok := requireInstitution(c)
	if !ok {
		return
	}
	rooms, err := h.resources.Rooms(c.Request.Context(), institutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// PutRooms godoc
// @Summary Store room capacities
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.RoomsRequest true "Rooms"
// @Success 200 {object} response.Envelope
// @Router /rooms [put]
func (h *CatalogHandler) PutRooms(c *gin.Context) {
	var req dto.RoomsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rooms, err := h.resources.PutRooms(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// Classes godoc
// @Summary List class groups
// @Tags Catalog
// @Produce json
// @Param institution_id query string true "Institution ID"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *CatalogHandler) Classes(c *gin.Context) {
	institutionID, ok := requireInstitution(c)
	if !ok {
		return
	}
	classes, err := h.resources.Classes(c.Request.Context(), institutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

// PutClasses godoc
// @Summary Store class headcounts
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.ClassesRequest true "Class groups"
// @Success 200 {object} response.Envelope
// @Router /classes [put]
func (h *CatalogHandler) PutClasses(c *gin.Context) {
	var req dto.ClassesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	classes, err := h.resources.PutClasses(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, nil)
}

func requireInstitution(c *gin.Context) (string, bool) {
	institutionID := c.Query("institution_id")
	if institutionID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "institution_id is required"))
		return "", false
	}
	return institutionID, true
}
