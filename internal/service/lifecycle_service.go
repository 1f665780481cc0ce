package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/repository"
	"github.com/noah-isme/carnet-api/pkg/credential"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

// allowedTransitions lists every legal state change. Approved has no outgoing edges.
var allowedTransitions = map[models.RequestState]map[models.RequestState]struct{}{
	models.RequestStatePending: {
		models.RequestStateApproved: {},
		models.RequestStateRejected: {},
	},
	models.RequestStateRejected: {
		models.RequestStatePending: {},
	},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to models.RequestState) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

type lifecycleStore interface {
	GetByID(ctx context.Context, id int64) (*models.RequestWithDetail, error)
	UpdateState(ctx context.Context, params repository.UpdateStateParams) (*models.Request, error)
}

// CredentialRenderer turns an approved request into a document.
type CredentialRenderer interface {
	Render(rec credential.Record) ([]byte, error)
}

// NotificationDispatcher hands a notification to its transport.
type NotificationDispatcher interface {
	Deliver(ctx context.Context, n models.Notification) error
}

type verificationLinker interface {
	URL(requestID int64, code string) (string, error)
}

type deliveryRecorder interface {
	Record(ctx context.Context, requestID int64, recipient string, outcome models.DeliveryOutcome, detail string) (*models.DeliveryAttempt, error)
}

// TransitionResult is the committed request plus the delivery attempt made for it, if any.
type TransitionResult struct {
	Request  *models.RequestWithDetail `json:"request"`
	Delivery *models.DeliveryAttempt   `json:"delivery,omitempty"`
}

// LifecycleService moves requests through pending, approved and rejected.
type LifecycleService struct {
	store      lifecycleStore
	renderer   CredentialRenderer
	dispatcher NotificationDispatcher
	links      verificationLinker
	deliveries deliveryRecorder
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewLifecycleService wires the lifecycle manager and its approval pipeline.
func NewLifecycleService(
	store lifecycleStore,
	renderer CredentialRenderer,
	dispatcher NotificationDispatcher,
	links verificationLinker,
	deliveries deliveryRecorder,
	metrics *MetricsService,
	logger *zap.Logger,
) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		store:      store,
		renderer:   renderer,
		dispatcher: dispatcher,
		links:      links,
		deliveries: deliveries,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Transition applies one state change. Approval runs the credential pipeline before
// returning; pipeline failures end up in the delivery log, never in the returned error.
func (s *LifecycleService) Transition(ctx context.Context, id int64, target models.RequestState, actorID string) (*TransitionResult, error) {
	if !target.Valid() {
		return nil, appErrors.Validation("invalid state", map[string]string{"state": "must be pending, approved or rejected"})
	}

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to load request")
	}
	from := current.State
	if !CanTransition(from, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move request from %s to %s", from, target))
	}

	params := repository.UpdateStateParams{ID: id, From: from, To: target, ApprovedAt: current.ApprovedAt}
	if target == models.RequestStateApproved {
		approvedAt := s.now().UTC()
		if approvedAt.Before(current.CreatedAt) {
			approvedAt = current.CreatedAt.UTC()
		}
		params.ApprovedAt = &approvedAt
	}

	updated, err := s.store.UpdateState(ctx, params)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request state")
		}
		if _, getErr := s.store.GetByID(ctx, id); errors.Is(getErr, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request state changed concurrently")
	}

	current.Request = *updated
	s.metrics.RecordTransition(string(from), string(target))
	s.logger.Info("request state changed",
		zap.Int64("request_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor_id", actorID),
	)

	result := &TransitionResult{Request: current}
	if target == models.RequestStateApproved {
		result.Delivery = s.deliverCredential(context.WithoutCancel(ctx), current)
	}
	return result, nil
}

// deliverCredential renders, dispatches and records exactly one attempt.
func (s *LifecycleService) deliverCredential(ctx context.Context, req *models.RequestWithDetail) *models.DeliveryAttempt {
	log := s.logger.With(zap.Int64("request_id", req.ID))
	outcome, detail := models.DeliveryOutcomeSuccess, ""

	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome, detail = models.DeliveryOutcomeFailure, fmt.Sprintf("panic: %v", r)
				log.Error("credential pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		if err := s.sendCredential(ctx, req); err != nil {
			outcome, detail = models.DeliveryOutcomeFailure, err.Error()
			log.Warn("credential delivery failed", zap.Error(err))
		}
	}()

	attempt, err := s.deliveries.Record(ctx, req.ID, req.ContactEmail, outcome, detail)
	if err != nil {
		return nil
	}
	return attempt
}

func (s *LifecycleService) sendCredential(ctx context.Context, req *models.RequestWithDetail) error {
	rec, err := s.credentialRecord(req)
	if err != nil {
		return err
	}

	start := time.Now()
	doc, err := s.renderer.Render(rec)
	s.metrics.ObserveRender(time.Since(start))
	if err != nil {
		return err
	}

	notification, err := composeNotification(req, doc)
	if err != nil {
		return err
	}
	return s.dispatcher.Deliver(ctx, notification)
}

func (s *LifecycleService) credentialRecord(req *models.RequestWithDetail) (credential.Record, error) {
	link, err := s.links.URL(req.ID, req.VerificationCode)
	if err != nil {
		return credential.Record{}, fmt.Errorf("verification url: %w", err)
	}

	approvedAt := s.now().UTC()
	if req.ApprovedAt != nil {
		approvedAt = *req.ApprovedAt
	}
	rec := credential.Record{
		RequestID:        req.ID,
		VerificationCode: req.VerificationCode,
		VerificationURL:  link,
		ApprovedAt:       approvedAt,
	}

	switch d := req.Detail.(type) {
	case *models.EntrepreneurDetail:
		rec.Title = "Carnet de Emprendedor"
		rec.Badge = "Emprendedor"
		rec.HolderName = d.DisplayName()
		rec.ValidUntil = d.ExpirationDate
		if d.Sector != nil {
			rec.Highlight = credential.Field{Label: "Rubro del negocio", Value: *d.Sector}
		}
	case *models.PetDetail:
		rec.Title = "Carnet de Mascota"
		rec.Badge = "Mascota registrada"
		rec.HolderName = d.PetName
		rec.Highlight = credential.Field{Label: "Tutor responsable", Value: d.GuardianName}
	default:
		return credential.Record{}, fmt.Errorf("request %d: %w", req.ID, repository.ErrDetailMissing)
	}

	for _, f := range req.Detail.Fields() {
		if f.Key == "fecha_vencimiento" || strings.TrimSpace(f.Value) == "" {
			continue
		}
		rec.Fields = append(rec.Fields, credential.Field{Label: f.Label, Value: f.Value})
	}
	return rec, nil
}

func composeNotification(req *models.RequestWithDetail, doc []byte) (models.Notification, error) {
	n := models.Notification{To: req.ContactEmail, Attachment: doc}
	switch d := req.Detail.(type) {
	case *models.EntrepreneurDetail:
		n.Subject = "Carnet de Emprendedor"
		n.Body = fmt.Sprintf("Hola, adjunto encontrarás el carnet de tu emprendimiento: %s.", d.DisplayName())
		n.AttachmentName = fmt.Sprintf("carnet-emprendedor-%d.pdf", req.ID)
	case *models.PetDetail:
		n.Subject = "Carnet de tu mascota"
		n.Body = fmt.Sprintf("Hola %s, adjunto encontrarás el carnet de %s.", d.GuardianName, d.PetName)
		n.AttachmentName = fmt.Sprintf("carnet-%s.pdf", fileSlug(d.PetName, req.ID))
	default:
		return models.Notification{}, fmt.Errorf("request %d: %w", req.ID, repository.ErrDetailMissing)
	}
	return n, nil
}

var fileSlugReject = regexp.MustCompile(`[^a-z0-9]+`)

func fileSlug(name string, id int64) string {
	slug := strings.Trim(fileSlugReject.ReplaceAllString(strings.ToLower(foldLabel(name)), "-"), "-")
	if slug == "" {
		return fmt.Sprintf("mascota-%d", id)
	}
	return slug
}
