package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/internal/models"
	"github.com/noah-isme/carnet-api/internal/repository"
	"github.com/noah-isme/carnet-api/pkg/credential"
	appErrors "github.com/noah-isme/carnet-api/pkg/errors"
)

type stubRenderer struct {
	err     error
	panics  bool
	records []credential.Record
}

func (r *stubRenderer) Render(rec credential.Record) ([]byte, error) {
	if r.panics {
		panic("font table corrupted")
	}
	r.records = append(r.records, rec)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 stub"), nil
}

type stubDispatcher struct {
	err    error
	sent   []models.Notification
	ctxErr error
}

func (d *stubDispatcher) Deliver(ctx context.Context, n models.Notification) error {
	d.ctxErr = ctx.Err()
	d.sent = append(d.sent, n)
	return d.err
}

type stubLinker struct{}

func (stubLinker) URL(requestID int64, code string) (string, error) {
	return "https://carnet.example.org/verificar/" + code, nil
}

type racingStore struct {
	*memoryRequestStore
}

func (r racingStore) UpdateState(ctx context.Context, params repository.UpdateStateParams) (*models.Request, error) {
	params.From = models.RequestStateRejected
	return r.memoryRequestStore.UpdateState(ctx, params)
}

type lifecycleFixture struct {
	store      *memoryRequestStore
	requests   *RequestService
	lifecycle  *LifecycleService
	renderer   *stubRenderer
	dispatcher *stubDispatcher
	log        *stubDeliveryStore
}

func newLifecycleFixture() *lifecycleFixture {
	store := newMemoryRequestStore()
	requests, metrics := newTestRequestService(store)
	log := &stubDeliveryStore{}
	renderer := &stubRenderer{}
	dispatcher := &stubDispatcher{}
	deliveries := NewDeliveryLogService(log, nil, metrics, 0, nil)
	lifecycle := NewLifecycleService(store, renderer, dispatcher, stubLinker{}, deliveries, metrics, nil)
	return &lifecycleFixture{
		store:      store,
		requests:   requests,
		lifecycle:  lifecycle,
		renderer:   renderer,
		dispatcher: dispatcher,
		log:        log,
	}
}

func (f *lifecycleFixture) pet(t *testing.T, name string) *models.RequestWithDetail {
	t.Helper()
	created, err := f.requests.CreateManual(context.Background(), models.RequestTypePet, petFields(name))
	require.NoError(t, err)
	return created
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to models.RequestState
		allowed  bool
	}{
		{models.RequestStatePending, models.RequestStateApproved, true},
		{models.RequestStatePending, models.RequestStateRejected, true},
		{models.RequestStateRejected, models.RequestStatePending, true},
		{models.RequestStateRejected, models.RequestStateApproved, false},
		{models.RequestStatePending, models.RequestStatePending, false},
		{models.RequestStateApproved, models.RequestStatePending, false},
		{models.RequestStateApproved, models.RequestStateRejected, false},
		{models.RequestStateApproved, models.RequestStateApproved, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestLifecycleApproveDeliversCredential(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Luna María")

	result, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)

	assert.Equal(t, models.RequestStateApproved, result.Request.State)
	require.NotNil(t, result.Request.ApprovedAt)
	assert.False(t, result.Request.ApprovedAt.Before(result.Request.CreatedAt))

	require.Len(t, f.dispatcher.sent, 1)
	sent := f.dispatcher.sent[0]
	assert.Equal(t, "tutor@example.com", sent.To)
	assert.Equal(t, "Carnet de tu mascota", sent.Subject)
	assert.Equal(t, "carnet-luna-maria.pdf", sent.AttachmentName)
	assert.Contains(t, sent.Body, "Luna María")

	require.Len(t, f.renderer.records, 1)
	rec := f.renderer.records[0]
	assert.Equal(t, "Luna María", rec.HolderName)
	assert.Equal(t, "https://carnet.example.org/verificar/"+created.VerificationCode, rec.VerificationURL)

	require.NotNil(t, result.Delivery)
	assert.Equal(t, models.DeliveryOutcomeSuccess, result.Delivery.Outcome)
	assert.Len(t, f.log.attempts, 1)
}

func TestLifecycleApprovedAtNeverBeforeCreation(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Sol")
	f.lifecycle.now = func() time.Time { return created.CreatedAt.Add(-time.Hour) }

	result, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	require.NotNil(t, result.Request.ApprovedAt)
	assert.True(t, result.Request.ApprovedAt.Equal(created.CreatedAt))
}

func TestLifecycleApprovedIsTerminal(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Max")
	ctx := context.Background()

	_, err := f.lifecycle.Transition(ctx, created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)

	for _, target := range []models.RequestState{models.RequestStateRejected, models.RequestStatePending, models.RequestStateApproved} {
		_, err = f.lifecycle.Transition(ctx, created.ID, target, "op-1")
		require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	}
	stored, err := f.store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateApproved, stored.State)
	assert.Len(t, f.log.attempts, 1)
}

func TestLifecycleRejectAndReopen(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Kira")
	ctx := context.Background()

	result, err := f.lifecycle.Transition(ctx, created.ID, models.RequestStateRejected, "op-1")
	require.NoError(t, err)
	assert.Nil(t, result.Delivery)
	assert.Nil(t, result.Request.ApprovedAt)

	_, err = f.lifecycle.Transition(ctx, created.ID, models.RequestStateApproved, "op-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	result, err = f.lifecycle.Transition(ctx, created.ID, models.RequestStatePending, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatePending, result.Request.State)
	assert.Empty(t, f.dispatcher.sent)
	assert.Empty(t, f.log.attempts)
}

func TestLifecycleNotificationFailureKeepsApproval(t *testing.T) {
	f := newLifecycleFixture()
	f.dispatcher.err = errors.New("notification delivery failed: 535 auth")
	created := f.pet(t, "Toby")

	result, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateApproved, result.Request.State)

	require.Len(t, f.log.attempts, 1)
	attempt := f.log.attempts[0]
	assert.Equal(t, models.DeliveryOutcomeFailure, attempt.Outcome)
	require.NotNil(t, attempt.ErrorDetail)
	assert.Contains(t, *attempt.ErrorDetail, "535 auth")

	stored, err := f.store.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateApproved, stored.State)
}

func TestLifecycleRenderFailureSkipsDispatch(t *testing.T) {
	f := newLifecycleFixture()
	f.renderer.err = credential.ErrRender
	created := f.pet(t, "Nala")

	result, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	require.NotNil(t, result.Delivery)
	assert.Equal(t, models.DeliveryOutcomeFailure, result.Delivery.Outcome)
	assert.Empty(t, f.dispatcher.sent)
}

func TestLifecycleRecoversPipelinePanic(t *testing.T) {
	f := newLifecycleFixture()
	f.renderer.panics = true
	created := f.pet(t, "Rocky")

	result, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateApproved, result.Request.State)
	require.Len(t, f.log.attempts, 1)
	assert.Contains(t, *f.log.attempts[0].ErrorDetail, "font table corrupted")
}

func TestLifecyclePipelineIgnoresCallerCancellation(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Bruno")
	ctx, cancel := context.WithCancel(context.Background())

	f.lifecycle.store = cancelOnUpdate{memoryRequestStore: f.store, cancel: cancel}
	_, err := f.lifecycle.Transition(ctx, created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	require.Len(t, f.dispatcher.sent, 1)
	assert.NoError(t, f.dispatcher.ctxErr)
}

type cancelOnUpdate struct {
	*memoryRequestStore
	cancel context.CancelFunc
}

func (c cancelOnUpdate) UpdateState(ctx context.Context, params repository.UpdateStateParams) (*models.Request, error) {
	defer c.cancel()
	return c.memoryRequestStore.UpdateState(ctx, params)
}

func TestLifecycleUnknownRequest(t *testing.T) {
	f := newLifecycleFixture()
	_, err := f.lifecycle.Transition(context.Background(), 99, models.RequestStateApproved, "op-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLifecycleInvalidTargetState(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Coco")
	_, err := f.lifecycle.Transition(context.Background(), created.ID, "archived", "op-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLifecycleLostRaceIsInvalidTransition(t *testing.T) {
	f := newLifecycleFixture()
	created := f.pet(t, "Pelusa")
	f.lifecycle.store = racingStore{memoryRequestStore: f.store}

	_, err := f.lifecycle.Transition(context.Background(), created.ID, models.RequestStateRejected, "op-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestLifecycleEntrepreneurScenario(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	created, err := f.requests.CreateFromForm(ctx, entrepreneurForm("A@X.com"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatePending, created.State)

	result, err := f.lifecycle.Transition(ctx, created.ID, models.RequestStateApproved, "op-1")
	require.NoError(t, err)
	require.NotNil(t, result.Delivery)
	assert.Equal(t, "a@x.com", result.Delivery.RecipientEmail)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "Carnet de Emprendedor", f.dispatcher.sent[0].Subject)
	assert.Equal(t, "carnet-emprendedor-1.pdf", f.dispatcher.sent[0].AttachmentName)
	assert.Contains(t, f.dispatcher.sent[0].Body, "Panadería Sol")

	_, err = f.lifecycle.Transition(ctx, created.ID, models.RequestStateRejected, "op-1")
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestFileSlug(t *testing.T) {
	assert.Equal(t, "don-gato", fileSlug("  Don Gato!! ", 3))
	assert.Equal(t, "mascota-3", fileSlug("***", 3))
}
