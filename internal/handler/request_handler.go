package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carnet-api/internal/dto"
	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/service"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
	"github.com/noah-isme/carnet-api/pkg/response"
)

type requestService interface {
	CreateManual(ctx context.Context, t models.RequestType, fields map[string]string) (*models.RequestWithDetail, error)
	Get(ctx context.Context, id int64) (*models.RequestWithDetail, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error)
	Delete(ctx context.Context, id int64, actorID string) error
	Stats(ctx context.Context, t models.RequestType) (*models.TypeStats, error)
	AvailableMonths(ctx context.Context, t models.RequestType) ([]models.MonthBucket, error)
}

type lifecycleService interface {
	Transition(ctx context.Context, id int64, target models.RequestState, actorID string) (*service.TransitionResult, error)
}

type exportService interface {
	MonthlyDetails(ctx context.Context, t models.RequestType, year, month int, format string) (*service.ExportFile, error)
}

// RequestHandler exposes back-office request endpoints.
type RequestHandler struct {
	requests  requestService
	lifecycle lifecycleService
	exports   exportService
	location  *time.Location
}

// NewRequestHandler constructs the handler. Date filters are read in loc.
func NewRequestHandler(requests requestService, lifecycle lifecycleService, exports exportService, loc *time.Location) *RequestHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RequestHandler{requests: requests, lifecycle: lifecycle, exports: exports, location: loc}
}

// List godoc
// @Summary List requests
// @Tags Requests
// @Produce json
// @Param state query string false "pending, approved or rejected"
// @Param type query string false "entrepreneur or pet"
// @Param origin query string false "form or manual"
// @Param email query string false "Contact email substring"
// @Param from query string false "Created on or after (YYYY-MM-DD)"
// @Param to query string false "Created on or before (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var query dto.RequestListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	filter, err := query.Filter(h.location)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "dates must be YYYY-MM-DD"))
		return
	}

	items, pagination, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get request
// @Description Returns the request, its detail and its delivery attempts
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Create godoc
// @Summary Create request manually
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var payload dto.CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}
	t := models.RequestType(strings.ToLower(strings.TrimSpace(string(payload.Type))))
	created, err := h.requests.CreateManual(c.Request.Context(), t, payload.Fields())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Transition godoc
// @Summary Change request state
// @Description Approving runs credential generation and delivery before responding
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.TransitionPayload true "Target state"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{id}/state [patch]
func (h *RequestHandler) Transition(c *gin.Context) {
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var payload dto.TransitionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "state required"))
		return
	}
	target := models.RequestState(strings.ToLower(strings.TrimSpace(string(payload.State))))

	result, err := h.lifecycle.Transition(c.Request.Context(), id, target, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete request
// @Description Removes the request, its detail and its delivery history
// @Tags Requests
// @Param id path int true "Request ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	id, err := requestIDParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requests.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Request statistics
// @Tags Requests
// @Produce json
// @Param type query string true "entrepreneur or pet"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/stats [get]
func (h *RequestHandler) Stats(c *gin.Context) {
	stats, err := h.requests.Stats(c.Request.Context(), queryType(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Months godoc
// @Summary Months holding requests
// @Tags Requests
// @Produce json
// @Param type query string true "entrepreneur or pet"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/months [get]
func (h *RequestHandler) Months(c *gin.Context) {
	months, err := h.requests.AvailableMonths(c.Request.Context(), queryType(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, months, nil)
}

// Export godoc
// @Summary Export monthly details
// @Tags Requests
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Param type query string true "entrepreneur or pet"
// @Param year query int true "Year"
// @Param month query int true "Month (1-12)"
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "type, year and month required"))
		return
	}
	t := models.RequestType(strings.ToLower(strings.TrimSpace(query.Type)))
	file, err := h.exports.MonthlyDetails(c.Request.Context(), t, query.Year, query.Month, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func queryType(c *gin.Context) models.RequestType {
	return models.RequestType(strings.ToLower(strings.TrimSpace(c.Query("type"))))
}
