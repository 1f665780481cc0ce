package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carnet-api/internal/models"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

const (
	statusCachePrefix = "status:"
	defaultWindow     = 24 * time.Hour
)

type deliveryStore interface {
	Create(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListByRequest(ctx context.Context, requestID int64) ([]models.DeliveryAttempt, error)
	Summary(ctx context.Context, since time.Time) (*models.DeliverySummary, error)
}

// DeliveryLogService records credential delivery attempts and summarises them.
type DeliveryLogService struct {
	store    deliveryStore
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewDeliveryLogService wires the audit log. cache may be nil.
func NewDeliveryLogService(store deliveryStore, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *DeliveryLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryLogService{
		store:    store,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Record appends one attempt. Storage failures are logged and reported to the caller,
// which must not let them affect the request state.
func (s *DeliveryLogService) Record(ctx context.Context, requestID int64, recipient string, outcome models.DeliveryOutcome, detail string) (*models.DeliveryAttempt, error) {
	attempt := &models.DeliveryAttempt{
		RequestID:      &requestID,
		RecipientEmail: recipient,
		AttemptedAt:    s.now().UTC(),
		Outcome:        outcome,
	}
	if detail != "" {
		attempt.ErrorDetail = &detail
	}

	if err := s.store.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to record delivery attempt",
			zap.Int64("request_id", requestID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record delivery attempt: %w", err)
	}

	s.metrics.RecordDelivery(string(outcome))
	s.cache.Invalidate(ctx, statusCachePrefix)
	return attempt, nil
}

// ListForRequest returns a request's attempts, newest first.
func (s *DeliveryLogService) ListForRequest(ctx context.Context, requestID int64) ([]models.DeliveryAttempt, error) {
	attempts, err := s.store.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list delivery attempts")
	}
	return attempts, nil
}

// Summary aggregates attempts over the trailing window.
func (s *DeliveryLogService) Summary(ctx context.Context, window time.Duration) (*models.DeliverySummary, error) {
	if window <= 0 {
		window = defaultWindow
	}
	key := fmt.Sprintf("%ssummary:%d", statusCachePrefix, int64(window.Seconds()))

	var cached models.DeliverySummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	summary, err := s.store.Summary(ctx, s.now().UTC().Add(-window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize deliveries")
	}
	summary.WindowHours = window.Hours()

	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, nil
}
