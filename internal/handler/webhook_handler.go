package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carnet-api/internal/dto"
	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
	"github.com/noah-isme/carnet-api/pkg/response"
)

type formIntake interface {
	CreateFromForm(ctx context.Context, fields map[string]string) (*models.RequestWithDetail, error)
}

type deliveryStatus interface {
	Summary(ctx context.Context, window time.Duration) (*models.DeliverySummary, error)
}

// WebhookHandler receives form submissions and reports delivery health.
type WebhookHandler struct {
	intake      formIntake
	status      deliveryStatus
	window      time.Duration
	webhookPath string
	now         func() time.Time
}

// NewWebhookHandler constructs the handler. webhookPath is the public path of Receive.
func NewWebhookHandler(intake formIntake, status deliveryStatus, window time.Duration, webhookPath string) *WebhookHandler {
	return &WebhookHandler{intake: intake, status: status, window: window, webhookPath: webhookPath, now: time.Now}
}

// Receive godoc
// @Summary Ingest a form submission
// @Description Accepts a flat JSON object of question labels to answers
// @Tags Webhook
// @Accept json
// @Produce json
// @Param X-Webhook-Token header string false "Shared secret when configured"
// @Param payload body map[string]interface{} true "Form answers"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /webhook/requests [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "body must be a JSON object"))
		return
	}

	created, err := h.intake.CreateFromForm(c.Request.Context(), dto.FlattenFields(raw))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "form submission processed", dto.WebhookReceipt{
		RequestID:        created.ID,
		VerificationCode: created.VerificationCode,
		State:            created.State,
	})
}

// Test godoc
// @Summary Echo webhook payload
// @Tags Webhook
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /webhook/test [get]
func (h *WebhookHandler) Test(c *gin.Context) {
	var raw map[string]interface{}
	_ = c.ShouldBindJSON(&raw)
	response.Message(c, http.StatusOK, "webhook endpoint is working", gin.H{
		"timestamp":     h.now().UTC().Format(time.RFC3339),
		"received_data": raw,
	})
}

// Status godoc
// @Summary Delivery activity over the trailing window
// @Tags Webhook
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /webhook/status [get]
func (h *WebhookHandler) Status(c *gin.Context) {
	summary, err := h.status.Summary(c.Request.Context(), h.window)
	if err != nil {
		response.Error(c, err)
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	response.JSON(c, http.StatusOK, dto.WebhookStatus{
		DeliverySummary: *summary,
		WebhookURL:      scheme + "://" + c.Request.Host + h.webhookPath,
	}, nil)
}
