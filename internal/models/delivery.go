package models

import "time"

// DeliveryOutcome is the result of one attempt to hand a credential to its recipient.
type DeliveryOutcome string

const (
	DeliveryOutcomeSuccess DeliveryOutcome = "success"
	DeliveryOutcomeFailure DeliveryOutcome = "failure"
)

// DeliveryAttempt is an append-only audit row. RequestID is nil once the request has been purged.
type DeliveryAttempt struct {
	ID             int64           `db:"id" json:"id"`
	RequestID      *int64          `db:"request_id" json:"request_id,omitempty"`
	RecipientEmail string          `db:"recipient_email" json:"recipient_email"`
	AttemptedAt    time.Time       `db:"attempted_at" json:"attempted_at"`
	Outcome        DeliveryOutcome `db:"outcome" json:"outcome"`
	ErrorDetail    *string         `db:"error_detail" json:"error_detail,omitempty"`
}

// DeliverySummary aggregates attempts inside a trailing window.
type DeliverySummary struct {
	Total         int        `db:"total" json:"total"`
	Successful    int        `db:"successful" json:"successful"`
	Failed        int        `db:"failed" json:"failed"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	WindowHours   float64    `db:"-" json:"window_hours"`
	Since         time.Time  `db:"-" json:"since"`
}

// Notification is the message handed to the dispatcher after a credential is rendered.
type Notification struct {
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}
