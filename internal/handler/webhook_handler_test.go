package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

type formIntakeMock struct {
	fields map[string]string
	resp   *models.RequestWithDetail
	err    error
}

func (m *formIntakeMock) CreateFromForm(ctx context.Context, fields map[string]string) (*models.RequestWithDetail, error) {
	m.fields = fields
	return m.resp, m.err
}

type deliveryStatusMock struct {
	window time.Duration
}

func (m *deliveryStatusMock) Summary(ctx context.Context, window time.Duration) (*models.DeliverySummary, error) {
	m.window = window
	return &models.DeliverySummary{Total: 3, Successful: 2, Failed: 1, WindowHours: window.Hours()}, nil
}

func TestWebhookReceive(t *testing.T) {
	intake := &formIntakeMock{resp: &models.RequestWithDetail{Request: models.Request{ID: 12, VerificationCode: "abc", State: models.RequestStatePending}}}
	handler := NewWebhookHandler(intake, &deliveryStatusMock{}, 24*time.Hour, "/api/v1/webhook/requests")

	c, w := newRequestTestContext(http.MethodPost, "/webhook/requests",
		`{"Tipo de solicitud":"mascota","Correo":"a@x.com","Edad del tutor":40,"Redes":["ig","radio"]}`)
	handler.Receive(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "40", intake.fields["Edad del tutor"])
	assert.Equal(t, "ig, radio", intake.fields["Redes"])

	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(12), data["requestId"])
	assert.Equal(t, "abc", data["verificationCode"])
	assert.Equal(t, "pending", data["state"])
}

func TestWebhookReceiveRejectsNonObject(t *testing.T) {
	handler := NewWebhookHandler(&formIntakeMock{}, &deliveryStatusMock{}, time.Hour, "/webhook/requests")
	c, w := newRequestTestContext(http.MethodPost, "/webhook/requests", `["not","an","object"]`)
	handler.Receive(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookReceiveValidationError(t *testing.T) {
	intake := &formIntakeMock{err: appErrors.Validation("invalid request", map[string]string{"contact_email": "required"})}
	handler := NewWebhookHandler(intake, &deliveryStatusMock{}, time.Hour, "/webhook/requests")
	c, w := newRequestTestContext(http.MethodPost, "/webhook/requests", `{"Tipo de solicitud":"mascota"}`)
	handler.Receive(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookTestEchoes(t *testing.T) {
	handler := NewWebhookHandler(&formIntakeMock{}, &deliveryStatusMock{}, time.Hour, "/webhook/requests")
	handler.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	c, w := newRequestTestContext(http.MethodGet, "/webhook/test", `{"ping":"pong"}`)
	handler.Test(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "2025-01-02T03:04:05Z", data["timestamp"])
	assert.Equal(t, "pong", data["received_data"].(map[string]interface{})["ping"])
}

func TestWebhookStatus(t *testing.T) {
	status := &deliveryStatusMock{}
	handler := NewWebhookHandler(&formIntakeMock{}, status, 24*time.Hour, "/api/v1/webhook/requests")

	c, w := newRequestTestContext(http.MethodGet, "/webhook/status", "")
	c.Request.Host = "carnet.example.org"
	c.Request.Header.Set("X-Forwarded-Proto", "https")
	handler.Status(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 24*time.Hour, status.window)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Equal(t, float64(24), data["window_hours"])
	assert.Equal(t, "https://carnet.example.org/api/v1/webhook/requests", data["webhook_url"])
}
