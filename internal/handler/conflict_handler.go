package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/service"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
	"github.com/noah-isme/sma-timetable/pkg/response"
)

type conflictWorkflow interface {
	List(ctx context.Context, scheduleID string, query dto.ConflictQuery) ([]models.Conflict, error)
	Get(ctx context.Context, id string) (*models.Conflict, error)
	Detect(ctx context.Context, scheduleID, actor string) (*dto.DetectResponse, error)
	Acknowledge(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error)
	Start(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error)
	Escalate(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error)
	Ignore(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error)
	Resolve(ctx context.Context, id, actor string, req dto.ResolveConflictRequest) (*models.Conflict, error)
	AutoResolve(ctx context.Context, id, actor string) (*dto.AutoResolveResponse, error)
	AutoResolveSchedule(ctx context.Context, scheduleID, actor string) (*dto.AutoResolveResponse, error)
}

// ConflictHandler exposes detection and the resolution workflow.
type ConflictHandler struct {
	service conflictWorkflow
}

// NewConflictHandler constructs the handler.
func NewConflictHandler(svc *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{service: svc}
}

// ListBySchedule godoc
// @Summary List conflicts of a schedule
// @Tags Conflicts
// @Produce json
// @Param id path string true "Schedule ID"
// @Param status query string false "Filter by status"
// @Param severity query string false "Filter by severity"
// @Param type query string false "Filter by type"
// @Param open query bool false "Only unresolved conflicts"
// @Param blocking query bool false "Only conflicts blocking approval"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts [get]
func (h *ConflictHandler) ListBySchedule(c *gin.Context) {
	var query dto.ConflictQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	conflicts, err := h.service.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// Detect godoc
// @Summary Run conflict detection
// @Tags Conflicts
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts/detect [post]
func (h *ConflictHandler) Detect(c *gin.Context) {
	result, err := h.service.Detect(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AutoResolveSchedule godoc
// @Summary Apply automatic remedies across a draft schedule
// @Tags Conflicts
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/conflicts/auto-resolve [post]
func (h *ConflictHandler) AutoResolveSchedule(c *gin.Context) {
	result, err := h.service.AutoResolveSchedule(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Get godoc
// @Summary Get conflict
// @Tags Conflicts
// @Produce json
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id} [get]
func (h *ConflictHandler) Get(c *gin.Context) {
	conflict, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// Acknowledge godoc
// @Summary Acknowledge conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ConflictNoteRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/acknowledge [post]
func (h *ConflictHandler) Acknowledge(c *gin.Context) {
	h.noteTransition(c, h.service.Acknowledge)
}

// Start godoc
// @Summary Start working on conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ConflictNoteRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/start [post]
func (h *ConflictHandler) Start(c *gin.Context) {
	h.noteTransition(c, h.service.Start)
}

// Escalate godoc
// @Summary Escalate conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ConflictNoteRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/escalate [post]
func (h *ConflictHandler) Escalate(c *gin.Context) {
	h.noteTransition(c, h.service.Escalate)
}

// Ignore godoc
// @Summary Ignore conflict
// @Description Critical and blocking conflicts cannot be ignored.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ConflictNoteRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/ignore [post]
func (h *ConflictHandler) Ignore(c *gin.Context) {
	h.noteTransition(c, h.service.Ignore)
}

// Resolve godoc
// @Summary Resolve conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param id path string true "Conflict ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution payload"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflict, err := h.service.Resolve(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}

// AutoResolve godoc
// @Summary Apply an automatic remedy to one conflict
// @Tags Conflicts
// @Produce json
// @Param id path string true "Conflict ID"
// @Success 200 {object} response.Envelope
// @Router /conflicts/{id}/auto-resolve [post]
func (h *ConflictHandler) AutoResolve(c *gin.Context) {
	result, err := h.service.AutoResolve(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type noteTransitionFunc func(ctx context.Context, id, actor string, req dto.ConflictNoteRequest) (*models.Conflict, error)

func (h *ConflictHandler) noteTransition(c *gin.Context, apply noteTransitionFunc) {
	var req dto.ConflictNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflict, err := apply(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflict, nil)
}
