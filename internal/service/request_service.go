package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/repository"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

const maxCodeAttempts = 5

type requestStore interface {
	Create(ctx context.Context, req *models.Request, detail models.Detail) error
	GetByID(ctx context.Context, id int64) (*models.RequestWithDetail, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, t models.RequestType) (*models.TypeStats, error)
	AvailableMonths(ctx context.Context, t models.RequestType, loc *time.Location) ([]models.MonthBucket, error)
}

type deliveryHistory interface {
	ListForRequest(ctx context.Context, requestID int64) ([]models.DeliveryAttempt, error)
}

// RequestService glues intake normalisation to the request store.
type RequestService struct {
	store      requestStore
	normalizer *IntakeNormalizer
	history    deliveryHistory
	metrics    *MetricsService
	logger     *zap.Logger
	location   *time.Location
	codes      func() (string, error)
}

// NewRequestService wires the request service.
func NewRequestService(store requestStore, normalizer *IntakeNormalizer, history deliveryHistory, metrics *MetricsService, loc *time.Location, logger *zap.Logger) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = NewIntakeNormalizer(nil)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RequestService{
		store:      store,
		normalizer: normalizer,
		history:    history,
		metrics:    metrics,
		logger:     logger,
		location:   loc,
		codes:      NewVerificationCode,
	}
}

// NewVerificationCode returns 16 random bytes, hex encoded.
func NewVerificationCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateFromForm ingests a labelled form submission.
func (s *RequestService) CreateFromForm(ctx context.Context, fields map[string]string) (*models.RequestWithDetail, error) {
	payload, err := s.normalizer.Normalize(fields, "", true)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, payload, models.RequestOriginForm)
}

// CreateManual stores a request typed in by an operator. Keys are canonical field names.
func (s *RequestService) CreateManual(ctx context.Context, t models.RequestType, fields map[string]string) (*models.RequestWithDetail, error) {
	payload, err := s.normalizer.Normalize(fields, t, false)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, payload, models.RequestOriginManual)
}

func (s *RequestService) create(ctx context.Context, payload *models.IntakePayload, origin models.RequestOrigin) (*models.RequestWithDetail, error) {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
		}

		req := &models.Request{
			Type:             payload.Type,
			State:            models.RequestStatePending,
			Origin:           origin,
			ContactEmail:     payload.ContactEmail,
			VerificationCode: code,
		}
		err = s.store.Create(ctx, req, payload.Detail)
		switch {
		case err == nil:
			s.metrics.RecordRequestCreated(string(req.Type), string(req.Origin))
			s.logger.Info("request created",
				zap.Int64("request_id", req.ID),
				zap.String("type", string(req.Type)),
				zap.String("origin", string(req.Origin)),
			)
			return &models.RequestWithDetail{Request: *req, Detail: payload.Detail}, nil
		case errors.Is(err, repository.ErrDuplicateVerificationCode):
			s.logger.Warn("verification code collision", zap.Int("attempt", attempt))
			continue
		case errors.Is(err, repository.ErrDetailMismatch):
			return nil, appErrors.Validation("invalid request", map[string]string{"type": "does not match detail"})
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "verification code already exists")
}

// Get returns a request with its detail and delivery history.
func (s *RequestService) Get(ctx context.Context, id int64) (*models.RequestWithDetail, error) {
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load request")
	}
	if s.history != nil {
		attempts, err := s.history.ListForRequest(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load delivery history")
		}
		req.Deliveries = attempts
	}
	return req, nil
}

// List returns one page of requests and its pagination metadata.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, *models.Pagination, error) {
	filter.Normalize()
	if filter.State != "" && !filter.State.Valid() {
		return nil, nil, appErrors.Validation("invalid filter", map[string]string{"state": "unknown state"})
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Validation("invalid filter", map[string]string{"type": "unknown type"})
	}
	if filter.Origin != "" && !filter.Origin.Valid() {
		return nil, nil, appErrors.Validation("invalid filter", map[string]string{"origin": "unknown origin"})
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, nil, appErrors.Validation("invalid filter", map[string]string{"to": "must be after from"})
	}

	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return items, models.NewPagination(filter.Page, filter.Limit, total), nil
}

// Delete removes a request together with its detail and delivery history.
func (s *RequestService) Delete(ctx context.Context, id int64, actorID string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err, "failed to delete request")
	}
	s.logger.Info("request deleted", zap.Int64("request_id", id), zap.String("actor_id", actorID))
	return nil
}

// Stats returns per-state counters for one request type.
func (s *RequestService) Stats(ctx context.Context, t models.RequestType) (*models.TypeStats, error) {
	if !t.Valid() {
		return nil, appErrors.Validation("invalid request type", map[string]string{"type": "must be entrepreneur or pet"})
	}
	stats, err := s.store.Stats(ctx, t)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute stats")
	}
	return stats, nil
}

// AvailableMonths lists months holding requests of a type in the service timezone.
func (s *RequestService) AvailableMonths(ctx context.Context, t models.RequestType) ([]models.MonthBucket, error) {
	if !t.Valid() {
		return nil, appErrors.Validation("invalid request type", map[string]string{"type": "must be entrepreneur or pet"})
	}
	months, err := s.store.AvailableMonths(ctx, t, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list months")
	}
	return months, nil
}

// storeError maps repository errors onto the API taxonomy.
func storeError(err error, message string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "request not found")
	case errors.Is(err, repository.ErrDetailMissing), errors.Is(err, repository.ErrDetailMismatch):
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "request detail inconsistent")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
