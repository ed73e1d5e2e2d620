package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
	"github.com/noah-isme/sma-timetable/pkg/middleware/requestid"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

func serve(t *testing.T, handler gin.HandlerFunc, reqID string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if reqID != "" {
		req.Header.Set(requestid.HeaderKey, reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestJSONWrapsDataAndPagination(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		JSON(c, http.StatusOK, []string{"sched-1"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1})
	}, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `["sched-1"]`, string(body["data"]))
	assert.Contains(t, body, "pagination")
	assert.NotContains(t, body, "error")
}

func TestErrorCarriesRequestID(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNotFound, "schedule not found"))
	}, "req-42")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var appErr appErrors.Error
	require.NoError(t, json.Unmarshal(body["error"], &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, "schedule not found", appErr.Message)
	assert.JSONEq(t, `{"request_id":"req-42"}`, string(body["meta"]))
}

func TestNoContentHasNoBody(t *testing.T) {
	w, _ := serve(t, NoContent, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())
}
