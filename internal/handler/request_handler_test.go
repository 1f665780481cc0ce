package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/middleware"
	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/service"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

type requestServiceMock struct {
	created     *models.RequestWithDetail
	createErr   error
	createType  models.RequestType
	fields      map[string]string
	getResp     *models.RequestWithDetail
	getErr      error
	listResp    []models.Request
	lastFilter  models.RequestFilter
	deleteErr   error
	deletedID   int64
	deleteActor string
}

func (m *requestServiceMock) CreateManual(ctx context.Context, t models.RequestType, fields map[string]string) (*models.RequestWithDetail, error) {
	m.createType = t
	m.fields = fields
	return m.created, m.createErr
}

func (m *requestServiceMock) Get(ctx context.Context, id int64) (*models.RequestWithDetail, error) {
	return m.getResp, m.getErr
}

func (m *requestServiceMock) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, models.NewPagination(1, 20, len(m.listResp)), nil
}

func (m *requestServiceMock) Delete(ctx context.Context, id int64, actorID string) error {
	m.deletedID = id
	m.deleteActor = actorID
	return m.deleteErr
}

func (m *requestServiceMock) Stats(ctx context.Context, t models.RequestType) (*models.TypeStats, error) {
	return &models.TypeStats{Type: t}, nil
}

func (m *requestServiceMock) AvailableMonths(ctx context.Context, t models.RequestType) ([]models.MonthBucket, error) {
	return []models.MonthBucket{{Year: 2025, Month: 2}}, nil
}

type lifecycleServiceMock struct {
	result *service.TransitionResult
	err    error
	target models.RequestState
	actor  string
}

func (m *lifecycleServiceMock) Transition(ctx context.Context, id int64, target models.RequestState, actorID string) (*service.TransitionResult, error) {
	m.target = target
	m.actor = actorID
	return m.result, m.err
}

type exportServiceMock struct {
	year, month int
	format      string
}

func (m *exportServiceMock) MonthlyDetails(ctx context.Context, t models.RequestType, year, month int, format string) (*service.ExportFile, error) {
	m.year, m.month, m.format = year, month, format
	return &service.ExportFile{Filename: "detalles_pet_2025-02.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("ID\n")}, nil
}

func newRequestTestContext(method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "op-1", Role: models.RoleOperator})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequestHandlerListParsesFilters(t *testing.T) {
	mockSvc := &requestServiceMock{listResp: []models.Request{{ID: 1}}}
	handler := NewRequestHandler(mockSvc, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodGet, "/requests?state=pending&type=pet&email=gmail&from=2025-02-01&page=2&limit=10", "")
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RequestStatePending, mockSvc.lastFilter.State)
	assert.Equal(t, models.RequestTypePet, mockSvc.lastFilter.Type)
	assert.Equal(t, "gmail", mockSvc.lastFilter.ContactEmail)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	require.NotNil(t, mockSvc.lastFilter.From)
	body := decodeEnvelope(t, w)
	assert.NotNil(t, body["pagination"])
}

func TestRequestHandlerListRejectsBadDate(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{}, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)
	c, w := newRequestTestContext(http.MethodGet, "/requests?from=yesterday", "")
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerCreate(t *testing.T) {
	mockSvc := &requestServiceMock{created: &models.RequestWithDetail{Request: models.Request{ID: 5, State: models.RequestStatePending}}}
	handler := NewRequestHandler(mockSvc, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodPost, "/requests",
		`{"type":"Pet","contact_email":"a@x.com","detail":{"nombre_mascota":"Luna","edad_tutor":31}}`)
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RequestTypePet, mockSvc.createType)
	assert.Equal(t, "31", mockSvc.fields["edad_tutor"])
	assert.Equal(t, "a@x.com", mockSvc.fields["contact_email"])
}

func TestRequestHandlerCreateValidationError(t *testing.T) {
	mockSvc := &requestServiceMock{createErr: appErrors.Validation("invalid request", map[string]string{"nombre_mascota": "required"})}
	handler := NewRequestHandler(mockSvc, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodPost, "/requests", `{"type":"pet","detail":{}}`)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.Equal(t, "required", errBody["fields"].(map[string]interface{})["nombre_mascota"])
}

func TestRequestHandlerTransition(t *testing.T) {
	lifecycle := &lifecycleServiceMock{result: &service.TransitionResult{Request: &models.RequestWithDetail{}}}
	handler := NewRequestHandler(&requestServiceMock{}, lifecycle, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodPatch, "/requests/3/state", `{"state":"APPROVED"}`)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	handler.Transition(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RequestStateApproved, lifecycle.target)
	assert.Equal(t, "op-1", lifecycle.actor)
}

func TestRequestHandlerTransitionConflict(t *testing.T) {
	lifecycle := &lifecycleServiceMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move request from approved to rejected")}
	handler := NewRequestHandler(&requestServiceMock{}, lifecycle, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodPatch, "/requests/3/state", `{"state":"rejected"}`)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	handler.Transition(c)

	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "INVALID_TRANSITION", body["error"].(map[string]interface{})["code"])
}

func TestRequestHandlerRejectsBadID(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{}, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodGet, "/requests/abc", "")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerGetNotFound(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "request not found")}, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, w := newRequestTestContext(http.MethodGet, "/requests/9", "")
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestHandlerDelete(t *testing.T) {
	mockSvc := &requestServiceMock{}
	handler := NewRequestHandler(mockSvc, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)

	c, _ := newRequestTestContext(http.MethodDelete, "/requests/8", "")
	c.Params = gin.Params{{Key: "id", Value: "8"}}
	handler.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, int64(8), mockSvc.deletedID)
	assert.Equal(t, "op-1", mockSvc.deleteActor)
}

func TestRequestHandlerExport(t *testing.T) {
	exports := &exportServiceMock{}
	handler := NewRequestHandler(&requestServiceMock{}, &lifecycleServiceMock{}, exports, time.UTC)

	c, w := newRequestTestContext(http.MethodGet, "/requests/export?type=pet&year=2025&month=2&format=csv", "")
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="detalles_pet_2025-02.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, 2025, exports.year)
	assert.Equal(t, 2, exports.month)
	assert.Equal(t, "csv", exports.format)
}

func TestRequestHandlerExportMissingParams(t *testing.T) {
	handler := NewRequestHandler(&requestServiceMock{}, &lifecycleServiceMock{}, &exportServiceMock{}, time.UTC)
	c, w := newRequestTestContext(http.MethodGet, "/requests/export?type=pet", "")
	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
