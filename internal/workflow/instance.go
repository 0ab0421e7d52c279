package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
)

// Pending sub-state values exposed while an external call is in flight.
// Pending is distinct from the stage itself: a workflow at the documents
// stage with a pending upload has not completed the documents stage.
const (
	PendingNone               = ""
	PendingOfferStatusCheck   = "offer_status_check"
	PendingApplicationPersist = "application_persist"
	PendingDocumentUpload     = "document_upload"
	PendingPaymentSubmit      = "payment_submit"
)

// depositMultiplier converts a proposed monthly amount into the amount due at
// completion: first month plus an equal deposit.
var depositMultiplier = decimal.NewFromInt(2)

// Instance tracks one applicant's pursuit of one listing from offer to paid
// lease. Stages only move forward; every advance re-checks its guard against
// current state rather than trusting anything cached.
//
// An instance is advanced sequentially by a single actor, so it carries no
// internal locking. The one concurrent boundary is the counterparty's
// mutation of the offer status, which is always re-read through the
// OfferStatusFetcher before entering the application stage.
type Instance struct {
	id             uuid.UUID
	offer          *models.Offer
	stage          models.Stage
	pending        string
	observed       models.OfferStatus
	terminated     bool
	terminalStatus models.OfferStatus
	application    *models.ApplicationRecord
	documents      *models.DocumentSet
	payment        *models.PaymentRecord
	collab         Collaborators
	logger         *logrus.Logger
}

// New creates a workflow instance at the offer stage for a freshly submitted
// offer.
func New(offer *models.Offer, collab Collaborators, logger *logrus.Logger) *Instance {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Instance{
		id:        uuid.New(),
		offer:     offer,
		stage:     models.StageOffer,
		documents: models.NewDocumentSet(),
		collab:    collab,
		logger:    logger,
	}
}

// NewFromSnapshot rebuilds an instance from persisted state.
func NewFromSnapshot(snap *models.WorkflowSnapshot, offer *models.Offer, collab Collaborators, logger *logrus.Logger) *Instance {
	inst := New(offer, collab, logger)
	inst.id = snap.ID
	inst.stage = snap.Stage
	inst.terminated = snap.Terminated
	inst.terminalStatus = snap.TerminalStatus
	inst.application = snap.Application
	if snap.Documents != nil {
		inst.documents = snap.Documents
	}
	inst.payment = snap.Payment
	return inst
}

// ID returns the workflow instance identifier.
func (i *Instance) ID() uuid.UUID {
	return i.id
}

// Stage returns the current, last confirmed stage.
func (i *Instance) Stage() models.Stage {
	return i.stage
}

// Pending returns the external operation currently in flight, or an empty
// string when the workflow is idle at its stage.
func (i *Instance) Pending() string {
	return i.pending
}

// Offer returns the offer terms this workflow is bound to.
func (i *Instance) Offer() *models.Offer {
	return i.offer
}

// Application returns the submitted application record, if any.
func (i *Instance) Application() *models.ApplicationRecord {
	return i.application
}

// Documents returns the document set.
func (i *Instance) Documents() *models.DocumentSet {
	return i.documents
}

// Payment returns the payment record, if any.
func (i *Instance) Payment() *models.PaymentRecord {
	return i.payment
}

// Terminated reports whether the workflow ended on a rejection or withdrawal,
// and with which terminal status.
func (i *Instance) Terminated() (bool, models.OfferStatus) {
	return i.terminated, i.terminalStatus
}

// CanWithdraw reports whether the applicant may still abandon the
// transaction. Withdrawal is only permitted before the documents stage.
func (i *Instance) CanWithdraw() bool {
	return !i.terminated && i.stage <= models.StageApplication
}

func (i *Instance) begin(op string) func() {
	i.pending = op
	return func() { i.pending = PendingNone }
}

func (i *Instance) checkActive() error {
	if i.terminated {
		return ErrWorkflowTerminated
	}
	if i.stage == models.StageComplete {
		return ErrWorkflowComplete
	}
	return nil
}

// SyncOffer refreshes the locally held offer terms after a revision. Only
// meaningful while the workflow still sits at the offer stage.
func (i *Instance) SyncOffer(offer *models.Offer) error {
	if err := i.checkActive(); err != nil {
		return err
	}
	if i.stage != models.StageOffer {
		return ErrWrongStage
	}
	if offer.ID != i.offer.ID {
		return fmt.Errorf("offer %s does not belong to this workflow", offer.ID)
	}
	i.offer = offer
	return nil
}

// Advance attempts the next guarded transition. On success the stage moves
// forward exactly one step; on failure the stage is unchanged and the error
// identifies the unmet precondition.
func (i *Instance) Advance(ctx context.Context) error {
	if err := i.checkActive(); err != nil {
		return err
	}

	switch i.stage {
	case models.StageOffer:
		return i.advanceFromOffer(ctx)
	case models.StageApplication:
		return i.advanceFromApplication(ctx)
	case models.StageDocuments:
		return i.advanceFromDocuments()
	case models.StagePayment:
		return i.advanceFromPayment()
	default:
		return ErrWorkflowComplete
	}
}

// advanceFromOffer re-reads the shared offer status and enters the
// application stage only on an observed acceptance. A concurrent rejection or
// withdrawal fails the transition deterministically.
func (i *Instance) advanceFromOffer(ctx context.Context) error {
	done := i.begin(PendingOfferStatusCheck)
	status, err := i.collab.Offers.FetchOfferStatus(ctx, i.offer.ID)
	done()
	if err != nil {
		return &ExternalError{Op: "fetch offer status", Err: err}
	}

	switch status {
	case models.OfferStatusAccepted:
		i.offer.Status = status
		i.setStage(models.StageApplication)
		return nil
	case models.OfferStatusRejected, models.OfferStatusWithdrawn:
		i.observed = status
		return &StatusChangeError{Observed: status}
	default:
		return &GuardError{Stage: i.stage, Reason: "offer not yet accepted by counterparty"}
	}
}

// advanceFromApplication requires a submitted, fully consented application.
func (i *Instance) advanceFromApplication(ctx context.Context) error {
	if i.application == nil {
		return &GuardError{Stage: i.stage, Reason: "application not submitted"}
	}
	if !i.application.AgreeToCredit || !i.application.AgreeToTerms {
		return &GuardError{Stage: i.stage, Reason: "credit check and terms consent required"}
	}
	if i.application.SubmittedAt == nil {
		done := i.begin(PendingApplicationPersist)
		err := i.collab.Applications.PersistApplication(ctx, i.id, i.application)
		done()
		if err != nil {
			return &ExternalError{Op: "persist application", Err: err}
		}
		now := time.Now().UTC()
		i.application.SubmittedAt = &now
	}
	i.setStage(models.StageDocuments)
	return nil
}

// advanceFromDocuments requires every required slot to be uploaded.
func (i *Instance) advanceFromDocuments() error {
	if !i.documents.Complete() {
		missing := i.documents.Missing()
		names := make([]string, len(missing))
		for n, slot := range missing {
			names[n] = string(slot)
		}
		return &GuardError{
			Stage:  i.stage,
			Reason: "documents incomplete: missing " + strings.Join(names, ", "),
		}
	}
	i.setStage(models.StagePayment)
	return nil
}

// advanceFromPayment requires a confirmed payment.
func (i *Instance) advanceFromPayment() error {
	if i.payment == nil {
		return &GuardError{Stage: i.stage, Reason: "payment not submitted"}
	}
	if !i.payment.Completed {
		return &GuardError{Stage: i.stage, Reason: "payment not yet confirmed"}
	}
	i.setStage(models.StageComplete)
	return nil
}

// SubmitApplication stores and persists the applicant's personal and
// employment data. Only valid at the application stage, which is only
// reachable once the offer has been accepted.
func (i *Instance) SubmitApplication(ctx context.Context, record models.ApplicationRecord) error {
	if err := i.checkActive(); err != nil {
		return err
	}
	if i.stage != models.StageApplication {
		return ErrWrongStage
	}
	if !record.AgreeToCredit || !record.AgreeToTerms {
		return &GuardError{Stage: i.stage, Reason: "credit check and terms consent required"}
	}

	done := i.begin(PendingApplicationPersist)
	err := i.collab.Applications.PersistApplication(ctx, i.id, &record)
	done()
	if err != nil {
		return &ExternalError{Op: "persist application", Err: err}
	}

	now := time.Now().UTC()
	record.SubmittedAt = &now
	i.application = &record

	i.logger.WithField("workflow_id", i.id).Info("Application submitted")
	return nil
}

// MarkDocumentUploaded records an upload for one required slot. Re-marking an
// already-uploaded slot is a no-op, so callers can retry safely after a
// timeout.
func (i *Instance) MarkDocumentUploaded(ctx context.Context, slot models.DocumentSlot) error {
	if err := i.checkActive(); err != nil {
		return err
	}
	if i.stage != models.StageDocuments {
		return ErrWrongStage
	}
	if !i.documents.KnownSlot(slot) {
		return ErrUnknownSlot
	}
	if i.documents.IsUploaded(slot) {
		return nil
	}

	done := i.begin(PendingDocumentUpload)
	err := i.collab.Documents.MarkDocumentUploaded(ctx, i.id, slot)
	done()
	if err != nil {
		return &ExternalError{Op: "mark document uploaded", Err: err}
	}

	i.documents.MarkUploaded(slot)
	i.logger.WithFields(logrus.Fields{
		"workflow_id": i.id,
		"slot":        slot,
	}).Info("Document uploaded")
	return nil
}

// SubmitPayment creates the payment record (first month plus deposit) and
// submits it downstream. Submitting against an already-completed payment
// returns the existing record without a second charge; submitting against an
// unconfirmed one re-checks the confirmation.
func (i *Instance) SubmitPayment(ctx context.Context, method string) (*models.PaymentRecord, error) {
	if err := i.checkActive(); err != nil {
		return nil, err
	}
	if i.stage != models.StagePayment {
		return nil, ErrWrongStage
	}
	// The stage gate already implies a complete document set, but a payment
	// must never exist alongside an unset slot.
	if !i.documents.Complete() {
		return nil, &GuardError{Stage: i.stage, Reason: "documents incomplete"}
	}

	if i.payment != nil && i.payment.Completed {
		return i.payment, nil
	}

	if i.payment == nil {
		i.payment = &models.PaymentRecord{
			ID:         uuid.New(),
			WorkflowID: i.id,
			AmountDue:  decimal.NewFromInt(int64(i.offer.ProposedAmount)).Mul(depositMultiplier),
			Currency:   i.offer.Currency,
			Method:     method,
			CreatedAt:  time.Now().UTC(),
		}
	}

	done := i.begin(PendingPaymentSubmit)
	confirmed, err := i.collab.Payments.SubmitPayment(ctx, i.payment)
	done()
	if err != nil {
		// The record stays so the next submit re-checks the same payment
		// instead of charging twice.
		return nil, &ExternalError{Op: "submit payment", Err: err}
	}

	if confirmed {
		now := time.Now().UTC()
		i.payment.Completed = true
		i.payment.CompletedAt = &now
		i.logger.WithFields(logrus.Fields{
			"workflow_id": i.id,
			"amount_due":  i.payment.AmountDue.String(),
		}).Info("Payment confirmed")
	}

	return i.payment, nil
}

// Acknowledge consumes a previously observed concurrent status change,
// terminating the workflow on the status the counterparty moved to.
func (i *Instance) Acknowledge() (models.OfferStatus, error) {
	if i.observed == "" {
		return "", ErrNothingToRead
	}
	status := i.observed
	i.observed = ""
	i.Terminate(status)
	return status, nil
}

// Terminate ends the workflow on a rejection or withdrawal. Terminating an
// already-terminated or completed workflow is a no-op.
func (i *Instance) Terminate(status models.OfferStatus) {
	if i.terminated || i.stage == models.StageComplete {
		return
	}
	i.terminated = true
	i.terminalStatus = status
	i.logger.WithFields(logrus.Fields{
		"workflow_id": i.id,
		"status":      status,
	}).Info("Workflow terminated")
}

func (i *Instance) setStage(next models.Stage) {
	i.logger.WithFields(logrus.Fields{
		"workflow_id": i.id,
		"from":        i.stage.String(),
		"to":          next.String(),
	}).Info("Workflow stage advanced")
	i.stage = next
}

// Snapshot returns the serializable state of the instance.
func (i *Instance) Snapshot() *models.WorkflowSnapshot {
	return &models.WorkflowSnapshot{
		ID:             i.id,
		OfferID:        i.offer.ID,
		ListingID:      i.offer.ListingID,
		ApplicantID:    i.offer.ApplicantID,
		Stage:          i.stage,
		Terminated:     i.terminated,
		TerminalStatus: i.terminalStatus,
		Application:    i.application,
		Documents:      i.documents,
		Payment:        i.payment,
		UpdatedAt:      time.Now().UTC(),
	}
}
