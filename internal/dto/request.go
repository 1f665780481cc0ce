package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/carnet-api/internal/models"
)

// CreateRequestPayload captures POST /requests. Detail keys are canonical field names.
type CreateRequestPayload struct {
	Type         models.RequestType     `json:"type" binding:"required"`
	ContactEmail string                 `json:"contact_email"`
	Detail       map[string]interface{} `json:"detail"`
}

// Fields merges the contact email into the flattened detail.
func (p CreateRequestPayload) Fields() map[string]string {
	fields := FlattenFields(p.Detail)
	if p.ContactEmail != "" {
		fields["contact_email"] = p.ContactEmail
	}
	return fields
}

// TransitionPayload captures PATCH /requests/:id/state.
type TransitionPayload struct {
	State models.RequestState `json:"state" binding:"required"`
}

// WebhookReceipt is returned to the form integration after ingestion.
type WebhookReceipt struct {
	RequestID        int64               `json:"requestId"`
	VerificationCode string              `json:"verificationCode"`
	State            models.RequestState `json:"state"`
}

// WebhookStatus reports recent delivery activity.
type WebhookStatus struct {
	models.DeliverySummary
	WebhookURL string `json:"webhook_url"`
}

// RequestListQuery binds GET /requests filters.
type RequestListQuery struct {
	State  string `form:"state"`
	Type   string `form:"type"`
	Origin string `form:"origin"`
	Email  string `form:"email"`
	From   string `form:"from"`
	To     string `form:"to"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

// Filter converts the query into a store filter. Dates are YYYY-MM-DD in loc; to is inclusive
// for callers and becomes the exclusive start of the following day.
func (q RequestListQuery) Filter(loc *time.Location) (models.RequestFilter, error) {
	filter := models.RequestFilter{
		State:        models.RequestState(strings.ToLower(strings.TrimSpace(q.State))),
		Type:         models.RequestType(strings.ToLower(strings.TrimSpace(q.Type))),
		Origin:       models.RequestOrigin(strings.ToLower(strings.TrimSpace(q.Origin))),
		ContactEmail: strings.TrimSpace(q.Email),
		Page:         q.Page,
		Limit:        q.Limit,
	}
	if q.From != "" {
		from, err := time.ParseInLocation("2006-01-02", q.From, loc)
		if err != nil {
			return filter, fmt.Errorf("from: %w", err)
		}
		filter.From = &from
	}
	if q.To != "" {
		to, err := time.ParseInLocation("2006-01-02", q.To, loc)
		if err != nil {
			return filter, fmt.Errorf("to: %w", err)
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	return filter, nil
}

// ExportQuery binds GET /requests/export.
type ExportQuery struct {
	Type   string `form:"type" binding:"required"`
	Year   int    `form:"year" binding:"required"`
	Month  int    `form:"month" binding:"required"`
	Format string `form:"format"`
}

// FlattenFields turns a loosely typed JSON object into intake fields.
// Multi-choice answers are joined with ", ".
func FlattenFields(raw map[string]interface{}) map[string]string {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = stringify(v)
	}
	return fields
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
