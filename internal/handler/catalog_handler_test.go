package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/dto"
	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

type loadCatalogMock struct {
	query   dto.TeachingLoadQuery
	deleted string
}

func (m *loadCatalogMock) List(ctx context.Context, query dto.TeachingLoadQuery) ([]models.TeachingLoad, error) {
	m.query = query
	return []models.TeachingLoad{{ID: "load-1"}}, nil
}

func (m *loadCatalogMock) Upsert(ctx context.Context, load models.TeachingLoad) (*models.TeachingLoad, error) {
	load.ID = "load-1"
	return &load, nil
}

func (m *loadCatalogMock) Delete(ctx context.Context, id string) error {
	if id == "missing" {
		return appErrors.Clone(appErrors.ErrNotFound, "teaching load not found")
	}
	m.deleted = id
	return nil
}

type resourceCatalogMock struct {
	rooms dto.RoomsRequest
}

func (m *resourceCatalogMock) Rooms(ctx context.Context, institutionID string) ([]models.Room, error) {
	return []models.Room{{ID: "lab", InstitutionID: institutionID}}, nil
}

func (m *resourceCatalogMock) PutRooms(ctx context.Context, req dto.RoomsRequest) ([]models.Room, error) {
	m.rooms = req
	return req.Rooms, nil
}

func (m *resourceCatalogMock) Classes(ctx context.Context, institutionID string) ([]models.ClassGroup, error) {
	return nil, nil
}

func (m *resourceCatalogMock) PutClasses(ctx context.Context, req dto.ClassesRequest) ([]models.ClassGroup, error) {
	return req.Classes, nil
}

type settingsManagerMock struct {
	actor string
}

func (m *settingsManagerMock) Get(ctx context.Context, institutionID string) (*models.GenerationSettings, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "settings not found")
}

func (m *settingsManagerMock) Put(ctx context.Context, institutionID string, settings models.GenerationSettings, actor string) (*models.GenerationSettings, error) {
	m.actor = actor
	if settings.DailyPeriods == 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid settings",
			[]scheduler.Violation{{Field: "daily_periods", Message: "must be between 1 and 12"}})
	}
	settings.InstitutionID = institutionID
	return &settings, nil
}

func catalogRouter(loads *loadCatalogMock, resources *resourceCatalogMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := &CatalogHandler{loads: loads, resources: resources}
	router := gin.New()
	router.GET("/teaching-loads", handler.ListLoads)
	router.POST("/teaching-loads", handler.UpsertLoad)
	router.DELETE("/teaching-loads/:id", handler.DeleteLoad)
	router.GET("/rooms", handler.Rooms)
	router.PUT("/rooms", handler.PutRooms)
	return router
}

func TestCatalogHandlerTeachingLoads(t *testing.T) {
	loads := &loadCatalogMock{}
	router := catalogRouter(loads, &resourceCatalogMock{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teaching-loads?teacher_id=teacher-1&institution_id=inst-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", loads.query.TeacherID)
	assert.Equal(t, "inst-1", loads.query.InstitutionID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/teaching-loads/load-7", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "load-7", loads.deleted)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/teaching-loads/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/teaching-loads", bytes.NewReader([]byte(`[`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogHandlerRooms(t *testing.T) {
	resources := &resourceCatalogMock{}
	router := catalogRouter(&loadCatalogMock{}, resources)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms?institution_id=inst-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/rooms", bytes.NewReader([]byte(`{"institution_id":"inst-1","rooms":[{"id":"lab","name":"Lab","capacity":30}]}`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resources.rooms.Rooms, 1)
	require.NotNil(t, resources.rooms.Rooms[0].Capacity)
	assert.Equal(t, 30, *resources.rooms.Rooms[0].Capacity)
}

func TestSettingsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &settingsManagerMock{}
	handler := &SettingsHandler{service: mock}
	router := gin.New()
	router.Use(withClaims(&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}))
	router.GET("/settings/:institutionId", handler.Get)
	router.PUT("/settings/:institutionId", handler.Put)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings/inst-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/settings/inst-1", bytes.NewReader([]byte(`{"working_days":[1,2,3]}`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decodeEnvelope(t, w.Body)
	details := envelope["error"].(map[string]interface{})["details"].([]interface{})
	assert.Len(t, details, 1)

	req = httptest.NewRequest(http.MethodPut, "/settings/inst-1", bytes.NewReader([]byte(`{"working_days":[1,2,3],"daily_periods":6}`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", mock.actor)
}
