package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type scheduleManager interface {
	Create(ctx context.Context, req dto.CreateScheduleRequest, actor string) (*models.Schedule, error)
	List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Summary(ctx context.Context, id string) (*scheduler.Summary, error)
	Submit(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)
	Approve(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)
	Reject(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)
	Activate(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)
	Archive(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)
}

type scheduleGenerator interface {
	Generate(ctx context.Context, scheduleID string, req dto.GenerateRequest, actor string) (*dto.GenerateResponse, error)
}

// ScheduleHandler manages timetable endpoints.
type ScheduleHandler struct {
	service   scheduleManager
	generator scheduleGenerator
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService, generator *service.GenerationService) *ScheduleHandler {
	return &ScheduleHandler{service: svc, generator: generator}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param institution_id query string false "Filter by institution"
// @Param academic_period_id query string false "Filter by academic period"
// @Param status query string false "Filter by lifecycle status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	schedules, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// Create godoc
// @Summary Create draft schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.Create(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Get godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Summary godoc
// @Summary Schedule health summary
// @Description Session counts, open conflicts, validation score and load coverage gaps.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/summary [get]
func (h *ScheduleHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Generate godoc
// @Summary Generate timetable sessions
// @Description Replaces generated sessions of a draft schedule. With dry_run the proposal is returned without persisting.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param dry_run query bool false "Preview without persisting"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/generate [post]
func (h *ScheduleHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate query"))
		return
	}
	result, err := h.generator.Generate(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	mode := "persisted"
	if result.DryRun {
		mode = "preview"
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"mode": mode})
}

// Submit godoc
// @Summary Submit schedule for review
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/submit [post]
func (h *ScheduleHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit)
}

// Approve godoc
// @Summary Approve schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/approve [post]
func (h *ScheduleHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

// Reject godoc
// @Summary Return approved schedule to draft
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/reject [post]
func (h *ScheduleHandler) Reject(c *gin.Context) {
	h.transition(c, h.service.Reject)
}

// Activate godoc
// @Summary Activate schedule
// @Description Archives the schedule previously active for the same institution and academic period.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/activate [post]
func (h *ScheduleHandler) Activate(c *gin.Context) {
	h.transition(c, h.service.Activate)
}

// Archive godoc
// @Summary Archive schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/archive [post]
func (h *ScheduleHandler) Archive(c *gin.Context) {
	h.transition(c, h.service.Archive)
}

func (h *ScheduleHandler) transition(c *gin.Context, apply func(ctx context.Context, id, actor string) (*dto.TransitionResponse, error)) {
	result, err := apply(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
