package workflow

import (
	"context"

	"github.com/google/uuid"

	"homematch/server/internal/models"
)

// OfferStatusFetcher reads the current offer status from the shared store.
// The workflow never caches this value across guard checks: the store row is
// the source of truth, and the counterparty mutates it independently.
type OfferStatusFetcher interface {
	FetchOfferStatus(ctx context.Context, offerID uuid.UUID) (models.OfferStatus, error)
}

// ApplicationPersister persists a submitted application record.
type ApplicationPersister interface {
	PersistApplication(ctx context.Context, workflowID uuid.UUID, record *models.ApplicationRecord) error
}

// DocumentStore records document uploads. Marking an already-uploaded slot
// must be a no-op on the store side as well.
type DocumentStore interface {
	MarkDocumentUploaded(ctx context.Context, workflowID uuid.UUID, slot models.DocumentSlot) error
}

// PaymentGateway submits a payment downstream. It returns whether the payment
// was confirmed; an accepted-but-unconfirmed payment returns (false, nil) and
// the caller re-checks later.
type PaymentGateway interface {
	SubmitPayment(ctx context.Context, record *models.PaymentRecord) (confirmed bool, err error)
}

// Collaborators bundles the external services a workflow instance depends on.
// All of them are black boxes: the only contract is success/failure plus the
// updated entity state.
type Collaborators struct {
	Offers       OfferStatusFetcher
	Applications ApplicationPersister
	Documents    DocumentStore
	Payments     PaymentGateway
}
