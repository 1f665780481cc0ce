package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/models"
)

type stubDeliveryStore struct {
	attempts     []models.DeliveryAttempt
	createErr    error
	summaryCalls int
	since        time.Time
}

func (s *stubDeliveryStore) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if s.createErr != nil {
		return s.createErr
	}
	attempt.ID = int64(len(s.attempts) + 1)
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *stubDeliveryStore) ListByRequest(ctx context.Context, requestID int64) ([]models.DeliveryAttempt, error) {
	out := make([]models.DeliveryAttempt, 0)
	for i := len(s.attempts) - 1; i >= 0; i-- {
		if a := s.attempts[i]; a.RequestID != nil && *a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubDeliveryStore) Summary(ctx context.Context, since time.Time) (*models.DeliverySummary, error) {
	s.summaryCalls++
	s.since = since
	summary := &models.DeliverySummary{Since: since}
	for _, a := range s.attempts {
		if a.AttemptedAt.Before(since) {
			continue
		}
		summary.Total++
		if a.Outcome == models.DeliveryOutcomeSuccess {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func TestDeliveryLogRecordFailure(t *testing.T) {
	store := &stubDeliveryStore{}
	metrics := NewMetricsService()
	svc := NewDeliveryLogService(store, nil, metrics, 0, nil)

	attempt, err := svc.Record(context.Background(), 4, "a@x.com", models.DeliveryOutcomeFailure, "smtp timeout")
	require.NoError(t, err)
	require.NotNil(t, attempt.ErrorDetail)
	assert.Equal(t, "smtp timeout", *attempt.ErrorDetail)
	assert.Equal(t, int64(4), *attempt.RequestID)
	assert.Equal(t, time.UTC, attempt.AttemptedAt.Location())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.deliveries.WithLabelValues("failure")))

	success, err := svc.Record(context.Background(), 4, "a@x.com", models.DeliveryOutcomeSuccess, "")
	require.NoError(t, err)
	assert.Nil(t, success.ErrorDetail)

	history, err := svc.ListForRequest(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.DeliveryOutcomeSuccess, history[0].Outcome)
}

func TestDeliveryLogRecordStoreError(t *testing.T) {
	store := &stubDeliveryStore{createErr: errors.New("db down")}
	svc := NewDeliveryLogService(store, nil, nil, 0, nil)

	_, err := svc.Record(context.Background(), 1, "a@x.com", models.DeliveryOutcomeSuccess, "")
	require.Error(t, err)
}

func TestDeliveryLogSummaryCachedAndInvalidated(t *testing.T) {
	store := &stubDeliveryStore{}
	cache := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := NewDeliveryLogService(store, cache, nil, time.Minute, nil)
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := svc.Record(ctx, 1, "a@x.com", models.DeliveryOutcomeSuccess, "")
	require.NoError(t, err)

	first, err := svc.Summary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, float64(24), first.WindowHours)
	assert.Equal(t, now.Add(-24*time.Hour), store.since)

	second, err := svc.Summary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Total)
	assert.Equal(t, 1, store.summaryCalls)

	_, err = svc.Record(ctx, 1, "a@x.com", models.DeliveryOutcomeFailure, "rejected")
	require.NoError(t, err)

	third, err := svc.Summary(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Total)
	assert.Equal(t, 1, third.Failed)
	assert.Equal(t, 2, store.summaryCalls)
}

func TestDeliveryLogSummaryExcludesOldAttempts(t *testing.T) {
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	id := int64(1)
	store := &stubDeliveryStore{attempts: []models.DeliveryAttempt{
		{RequestID: &id, AttemptedAt: now.Add(-48 * time.Hour), Outcome: models.DeliveryOutcomeFailure},
		{RequestID: &id, AttemptedAt: now.Add(-time.Hour), Outcome: models.DeliveryOutcomeSuccess},
	}}
	svc := NewDeliveryLogService(store, nil, nil, 0, nil)
	svc.now = func() time.Time { return now }

	summary, err := svc.Summary(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Successful)
}
