package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homematch/server/internal/models"
)

// fakeCollab implements every collaborator interface with controllable
// behavior.
type fakeCollab struct {
	status       models.OfferStatus
	statusErr    error
	persistErr   error
	uploadErr    error
	confirm      bool
	payErr       error
	statusCalls  int
	persistCalls int
	uploadCalls  int
	payCalls     int
	observer     func()
}

func (f *fakeCollab) FetchOfferStatus(ctx context.Context, offerID uuid.UUID) (models.OfferStatus, error) {
	f.statusCalls++
	if f.observer != nil {
		f.observer()
	}
	return f.status, f.statusErr
}

func (f *fakeCollab) PersistApplication(ctx context.Context, workflowID uuid.UUID, record *models.ApplicationRecord) error {
	f.persistCalls++
	return f.persistErr
}

func (f *fakeCollab) MarkDocumentUploaded(ctx context.Context, workflowID uuid.UUID, slot models.DocumentSlot) error {
	f.uploadCalls++
	return f.uploadErr
}

func (f *fakeCollab) SubmitPayment(ctx context.Context, record *models.PaymentRecord) (bool, error) {
	f.payCalls++
	return f.confirm, f.payErr
}

func (f *fakeCollab) collaborators() Collaborators {
	return Collaborators{Offers: f, Applications: f, Documents: f, Payments: f}
}

func testOffer() *models.Offer {
	return &models.Offer{
		ID:              uuid.New(),
		ListingID:       7,
		ApplicantID:     "applicant-1",
		CounterpartyID:  "landlord-1",
		ProposedAmount:  1450,
		Currency:        "EUR",
		MoveInDate:      time.Now().AddDate(0, 1, 0),
		LeaseTermMonths: 12,
		Status:          models.OfferStatusPending,
	}
}

func consentedApplication() models.ApplicationRecord {
	return models.ApplicationRecord{
		FullName:      "Jess de Vries",
		Email:         "jess@example.com",
		Employer:      "Acme BV",
		MonthlyIncome: 5000,
		AgreeToCredit: true,
		AgreeToTerms:  true,
	}
}

func TestAdvance_HappyPath(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted, confirm: true}
	inst := New(testOffer(), collab.collaborators(), logrus.New())
	ctx := context.Background()

	assert.Equal(t, models.StageOffer, inst.Stage())

	// Offer accepted -> application.
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StageApplication, inst.Stage())

	// Application submitted -> documents.
	require.NoError(t, inst.SubmitApplication(ctx, consentedApplication()))
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StageDocuments, inst.Stage())

	// All documents uploaded -> payment.
	for _, slot := range models.RequiredDocumentSlots() {
		require.NoError(t, inst.MarkDocumentUploaded(ctx, slot))
	}
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StagePayment, inst.Stage())

	// Payment confirmed -> complete.
	record, err := inst.SubmitPayment(ctx, "ideal")
	require.NoError(t, err)
	assert.True(t, record.Completed)
	assert.True(t, record.AmountDue.Equal(decimal.NewFromInt(2900)))
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StageComplete, inst.Stage())

	// Nothing left to advance.
	assert.Equal(t, ErrWorkflowComplete, inst.Advance(ctx))
}

func TestAdvance_OfferNotAccepted(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusPending}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	err := inst.Advance(context.Background())
	assert.True(t, IsGuardNotSatisfied(err))
	assert.Equal(t, models.StageOffer, inst.Stage())
}

func TestAdvance_ConcurrentRejection(t *testing.T) {
	// The counterparty rejects between the applicant's submission and the
	// advance call; the advance must fail with a status-change error, never
	// silently enter the application stage.
	collab := &fakeCollab{status: models.OfferStatusRejected}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	err := inst.Advance(context.Background())
	require.True(t, IsConcurrentStatusChange(err))
	assert.Equal(t, models.StageOffer, inst.Stage())

	// The applicant acknowledges the new status; the workflow terminates.
	status, err := inst.Acknowledge()
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusRejected, status)

	terminated, terminal := inst.Terminated()
	assert.True(t, terminated)
	assert.Equal(t, models.OfferStatusRejected, terminal)
	assert.Equal(t, ErrWorkflowTerminated, inst.Advance(context.Background()))
}

func TestAdvance_StatusFetchFailure(t *testing.T) {
	collab := &fakeCollab{statusErr: errors.New("store unavailable")}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	err := inst.Advance(context.Background())
	assert.True(t, IsExternalFailure(err))
	assert.Equal(t, models.StageOffer, inst.Stage())

	// The failure is retryable: a later advance with a reachable store works.
	collab.statusErr = nil
	collab.status = models.OfferStatusAccepted
	require.NoError(t, inst.Advance(context.Background()))
	assert.Equal(t, models.StageApplication, inst.Stage())
}

func TestAdvance_StatusAlwaysReRead(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusPending}
	inst := New(testOffer(), collab.collaborators(), logrus.New())
	ctx := context.Background()

	_ = inst.Advance(ctx)
	_ = inst.Advance(ctx)
	assert.Equal(t, 2, collab.statusCalls, "each advance must re-read the stored status")
}

func TestSubmitApplication_ConsentRequired(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted}
	inst := New(testOffer(), collab.collaborators(), logrus.New())
	ctx := context.Background()
	require.NoError(t, inst.Advance(ctx))

	record := consentedApplication()
	record.AgreeToCredit = false
	err := inst.SubmitApplication(ctx, record)
	assert.True(t, IsGuardNotSatisfied(err))
	assert.Equal(t, 0, collab.persistCalls)

	// Advance without any application also fails the guard.
	err = inst.Advance(ctx)
	assert.True(t, IsGuardNotSatisfied(err))
	assert.Equal(t, models.StageApplication, inst.Stage())
}

func TestSubmitApplication_BeforeAcceptance(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusPending}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	// An application record may not exist while the offer is not accepted.
	err := inst.SubmitApplication(context.Background(), consentedApplication())
	assert.Equal(t, ErrWrongStage, err)
	assert.Nil(t, inst.Application())
}

func TestSubmitApplication_PersistFailureLeavesStage(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted, persistErr: errors.New("timeout")}
	inst := New(testOffer(), collab.collaborators(), logrus.New())
	ctx := context.Background()
	require.NoError(t, inst.Advance(ctx))

	err := inst.SubmitApplication(ctx, consentedApplication())
	assert.True(t, IsExternalFailure(err))
	assert.Equal(t, models.StageApplication, inst.Stage())
	assert.Nil(t, inst.Application())

	// Retry succeeds once the collaborator recovers.
	collab.persistErr = nil
	require.NoError(t, inst.SubmitApplication(ctx, consentedApplication()))
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StageDocuments, inst.Stage())
}

func advanceToDocuments(t *testing.T, collab *fakeCollab) *Instance {
	t.Helper()
	inst := New(testOffer(), collab.collaborators(), logrus.New())
	ctx := context.Background()
	collab.status = models.OfferStatusAccepted
	require.NoError(t, inst.Advance(ctx))
	require.NoError(t, inst.SubmitApplication(ctx, consentedApplication()))
	require.NoError(t, inst.Advance(ctx))
	return inst
}

func TestAdvance_DocumentsGuard(t *testing.T) {
	collab := &fakeCollab{}
	inst := advanceToDocuments(t, collab)
	ctx := context.Background()

	// Two of three slots uploaded: advance must fail and leave the stage.
	require.NoError(t, inst.MarkDocumentUploaded(ctx, models.DocumentIdentity))
	require.NoError(t, inst.MarkDocumentUploaded(ctx, models.DocumentIncomeProof))

	err := inst.Advance(ctx)
	require.True(t, IsGuardNotSatisfied(err))
	assert.Contains(t, err.Error(), "reference")
	assert.Equal(t, models.StageDocuments, inst.Stage())

	// Third slot uploaded: advance succeeds.
	require.NoError(t, inst.MarkDocumentUploaded(ctx, models.DocumentReference))
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StagePayment, inst.Stage())
}

func TestMarkDocumentUploaded_Idempotent(t *testing.T) {
	collab := &fakeCollab{}
	inst := advanceToDocuments(t, collab)
	ctx := context.Background()

	require.NoError(t, inst.MarkDocumentUploaded(ctx, models.DocumentIdentity))
	require.NoError(t, inst.MarkDocumentUploaded(ctx, models.DocumentIdentity))
	assert.Equal(t, 1, collab.uploadCalls, "re-marking an uploaded slot must not hit the store again")
}

func TestMarkDocumentUploaded_UnknownSlot(t *testing.T) {
	collab := &fakeCollab{}
	inst := advanceToDocuments(t, collab)

	err := inst.MarkDocumentUploaded(context.Background(), models.DocumentSlot("passport"))
	assert.Equal(t, ErrUnknownSlot, err)
}

func TestMarkDocumentUploaded_WrongStage(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	err := inst.MarkDocumentUploaded(context.Background(), models.DocumentIdentity)
	assert.Equal(t, ErrWrongStage, err)
}

func advanceToPayment(t *testing.T, collab *fakeCollab) *Instance {
	t.Helper()
	inst := advanceToDocuments(t, collab)
	ctx := context.Background()
	for _, slot := range models.RequiredDocumentSlots() {
		require.NoError(t, inst.MarkDocumentUploaded(ctx, slot))
	}
	require.NoError(t, inst.Advance(ctx))
	return inst
}

func TestSubmitPayment_RequiresPaymentStage(t *testing.T) {
	collab := &fakeCollab{}
	inst := advanceToDocuments(t, collab)

	// A payment record must never be created while a document slot is unset.
	_, err := inst.SubmitPayment(context.Background(), "ideal")
	assert.Equal(t, ErrWrongStage, err)
	assert.Nil(t, inst.Payment())
	assert.Equal(t, 0, collab.payCalls)
}

func TestSubmitPayment_Idempotent(t *testing.T) {
	collab := &fakeCollab{confirm: true}
	inst := advanceToPayment(t, collab)
	ctx := context.Background()

	first, err := inst.SubmitPayment(ctx, "ideal")
	require.NoError(t, err)
	require.True(t, first.Completed)

	// A second submission returns the existing completed record and never
	// reaches the gateway again.
	second, err := inst.SubmitPayment(ctx, "ideal")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, collab.payCalls)
}

func TestSubmitPayment_UnconfirmedLeavesPaymentStage(t *testing.T) {
	collab := &fakeCollab{confirm: false}
	inst := advanceToPayment(t, collab)
	ctx := context.Background()

	record, err := inst.SubmitPayment(ctx, "ideal")
	require.NoError(t, err)
	assert.False(t, record.Completed)

	err = inst.Advance(ctx)
	assert.True(t, IsGuardNotSatisfied(err))
	assert.Equal(t, models.StagePayment, inst.Stage())

	// Retrying the completion check against the same record succeeds once
	// the gateway confirms.
	collab.confirm = true
	retried, err := inst.SubmitPayment(ctx, "ideal")
	require.NoError(t, err)
	assert.Equal(t, record.ID, retried.ID)
	assert.True(t, retried.Completed)
	require.NoError(t, inst.Advance(ctx))
	assert.Equal(t, models.StageComplete, inst.Stage())
}

func TestSubmitPayment_GatewayFailure(t *testing.T) {
	collab := &fakeCollab{payErr: errors.New("gateway timeout")}
	inst := advanceToPayment(t, collab)

	_, err := inst.SubmitPayment(context.Background(), "ideal")
	assert.True(t, IsExternalFailure(err))
	assert.Equal(t, models.StagePayment, inst.Stage())
}

func TestPendingSubState(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted}
	inst := New(testOffer(), collab.collaborators(), logrus.New())

	var observed string
	collab.observer = func() { observed = inst.Pending() }

	assert.Equal(t, PendingNone, inst.Pending())
	require.NoError(t, inst.Advance(context.Background()))
	assert.Equal(t, PendingOfferStatusCheck, observed, "pending must be visible while the call is in flight")
	assert.Equal(t, PendingNone, inst.Pending(), "pending clears once the call returns")
}

func TestSnapshotRoundTrip(t *testing.T) {
	collab := &fakeCollab{}
	inst := advanceToDocuments(t, collab)
	require.NoError(t, inst.MarkDocumentUploaded(context.Background(), models.DocumentIdentity))

	snap := inst.Snapshot()
	restored := NewFromSnapshot(snap, inst.Offer(), collab.collaborators(), logrus.New())

	assert.Equal(t, inst.ID(), restored.ID())
	assert.Equal(t, models.StageDocuments, restored.Stage())
	assert.True(t, restored.Documents().IsUploaded(models.DocumentIdentity))
	assert.False(t, restored.Documents().IsUploaded(models.DocumentReference))
	assert.NotNil(t, restored.Application())
}

func TestDisplayAmount(t *testing.T) {
	record := &models.PaymentRecord{
		AmountDue: decimal.NewFromInt(2900),
		Currency:  "EUR",
	}
	assert.Equal(t, "€2,900.00", DisplayAmount(record))
	assert.Equal(t, "", DisplayAmount(nil))
}
