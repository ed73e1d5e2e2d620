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

type sessionEditor interface {
	List(ctx context.Context, scheduleID string, query dto.SessionQuery) ([]models.Session, error)
	Create(ctx context.Context, scheduleID string, req dto.SessionRequest, actor string) (*dto.SessionMutationResponse, error)
	Update(ctx context.Context, scheduleID, sessionID string, req dto.SessionRequest, actor string) (*dto.SessionMutationResponse, error)
	Delete(ctx context.Context, scheduleID, sessionID, actor string) error
	Substitute(ctx context.Context, scheduleID, sessionID string, req dto.SubstituteRequest, actor string) (*dto.SessionMutationResponse, error)
	Check(ctx context.Context, scheduleID string, req dto.SessionRequest) (*dto.CheckResponse, error)
}

// SessionHandler exposes lesson editing endpoints of a schedule.
type SessionHandler struct {
	service sessionEditor
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List sessions of a schedule
// @Tags Sessions
// @Produce json
// @Param id path string true "Schedule ID"
// @Param day query string false "Day name or number"
// @Param teacher_id query string false "Filter by teacher"
// @Param class_id query string false "Filter by class"
// @Param room_id query string false "Filter by room"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	sessions, err := h.service.List(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Create godoc
// @Summary Add a session to a draft schedule
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.SessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /schedules/{id}/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), c.Param("id"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Replace a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Param payload body dto.SessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions/{sessionId} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), c.Param("id"), c.Param("sessionId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Remove a session
// @Tags Sessions
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Success 204
// @Router /schedules/{id}/sessions/{sessionId} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), c.Param("sessionId"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Substitute godoc
// @Summary Assign a substitute teacher
// @Description Only allowed while the schedule is a draft.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param sessionId path string true "Session ID"
// @Param payload body dto.SubstituteRequest true "Substitution payload"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions/{sessionId}/substitute [post]
func (h *SessionHandler) Substitute(c *gin.Context) {
	var req dto.SubstituteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Substitute(c.Request.Context(), c.Param("id"), c.Param("sessionId"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Check godoc
// @Summary Check a candidate session for conflicts
// @Description Nothing is stored.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.SessionRequest true "Candidate session"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/sessions/check [post]
func (h *SessionHandler) Check(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Check(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
