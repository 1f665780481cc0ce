package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/carnet-api/internal/models"
)

// DeliveryRepository stores the append-only credential delivery log.
type DeliveryRepository struct {
	db *sqlx.DB
}

// NewDeliveryRepository constructs the repository.
func NewDeliveryRepository(db *sqlx.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create appends an attempt and fills in its generated id.
func (r *DeliveryRepository) Create(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	const query = `INSERT INTO delivery_attempts (request_id, recipient_email, attempted_at, outcome, error_detail)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, attempt.RequestID, attempt.RecipientEmail, attempt.AttemptedAt, attempt.Outcome, attempt.ErrorDetail).
		Scan(&attempt.ID); err != nil {
		return fmt.Errorf("create delivery attempt: %w", err)
	}
	return nil
}

// ListByRequest returns a request's attempts, newest first.
func (r *DeliveryRepository) ListByRequest(ctx context.Context, requestID int64) ([]models.DeliveryAttempt, error) {
	const query = `SELECT id, request_id, recipient_email, attempted_at, outcome, error_detail
FROM delivery_attempts WHERE request_id = $1 ORDER BY attempted_at DESC, id DESC`
	attempts := make([]models.DeliveryAttempt, 0)
	if err := r.db.SelectContext(ctx, &attempts, query, requestID); err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	return attempts, nil
}

// Summary aggregates attempts made at or after since.
func (r *DeliveryRepository) Summary(ctx context.Context, since time.Time) (*models.DeliverySummary, error) {
	const query = `SELECT
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE outcome = 'success') AS successful,
       COUNT(*) FILTER (WHERE outcome = 'failure') AS failed,
       MAX(attempted_at) AS last_attempt_at
FROM delivery_attempts WHERE attempted_at >= $1`
	var summary models.DeliverySummary
	if err := r.db.GetContext(ctx, &summary, query, since); err != nil {
		return nil, fmt.Errorf("summarize delivery attempts: %w", err)
	}
	summary.Since = since
	return &summary, nil
}
