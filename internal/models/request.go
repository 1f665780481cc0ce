package models

import "time"

// RequestType discriminates the two supported request variants.
type RequestType string

// RequestState is the lifecycle state of a request.
type RequestState string

// RequestOrigin records which intake path produced a request.
type RequestOrigin string

const (
	RequestTypeEntrepreneur RequestType = "entrepreneur"
	RequestTypePet          RequestType = "pet"

	RequestStatePending  RequestState = "pending"
	RequestStateApproved RequestState = "approved"
	RequestStateRejected RequestState = "rejected"

	RequestOriginForm   RequestOrigin = "form"
	RequestOriginManual RequestOrigin = "manual"
)

// Valid reports whether the type is one of the supported variants.
func (t RequestType) Valid() bool {
	return t == RequestTypeEntrepreneur || t == RequestTypePet
}

// Valid reports whether the state is known.
func (s RequestState) Valid() bool {
	switch s {
	case RequestStatePending, RequestStateApproved, RequestStateRejected:
		return true
	}
	return false
}

// Valid reports whether the origin is known.
func (o RequestOrigin) Valid() bool {
	return o == RequestOriginForm || o == RequestOriginManual
}

// Request is the shared header row every citizen submission gets.
type Request struct {
	ID               int64         `db:"id" json:"id"`
	Type             RequestType   `db:"type" json:"type"`
	State            RequestState  `db:"state" json:"state"`
	Origin           RequestOrigin `db:"origin" json:"origin"`
	ContactEmail     string        `db:"contact_email" json:"contact_email"`
	VerificationCode string        `db:"verification_code" json:"verification_code"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	ApprovedAt       *time.Time    `db:"approved_at" json:"approved_at,omitempty"`
}

// RequestWithDetail bundles a request with its variant detail and delivery history.
type RequestWithDetail struct {
	Request
	Detail     Detail            `json:"detail"`
	Deliveries []DeliveryAttempt `json:"deliveries,omitempty"`
}

// RequestFilter captures list criteria. From is inclusive and To exclusive.
type RequestFilter struct {
	State        RequestState
	Type         RequestType
	Origin       RequestOrigin
	ContactEmail string
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps pagination into the accepted range.
func (f *RequestFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

// Offset returns the row offset for the current page.
func (f RequestFilter) Offset() int {
	if f.Page < 1 || f.Limit <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// IntakePayload is the normalizer output consumed by the store.
type IntakePayload struct {
	Type         RequestType
	ContactEmail string
	Detail       Detail
}

// TypeStats aggregates per-variant counters for dashboards.
type TypeStats struct {
	Type      RequestType    `json:"type"`
	Total     int            `json:"total"`
	ByState   map[string]int `json:"by_state"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

// StateCount is a raw grouped count row.
type StateCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// MonthBucket identifies a calendar month holding at least one request.
type MonthBucket struct {
	Year  int `db:"year" json:"year"`
	Month int `db:"month" json:"month"`
}
