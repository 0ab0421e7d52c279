package models

import (
	"time"

	"github.com/google/uuid"
)

// OfferStatus is the lifecycle status of an offer. Accepted, Rejected and
// Withdrawn are terminal: no further status transitions are permitted.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusWithdrawn OfferStatus = "withdrawn"
)

// IsTerminal reports whether no further counterparty response is expected.
func (s OfferStatus) IsTerminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusRejected, OfferStatusWithdrawn:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected, OfferStatusWithdrawn:
		return true
	}
	return false
}

// Offer is the shared transactional entity between an applicant and a
// counterparty (landlord/seller). The applicant owns ProposedAmount and the
// terms; the counterparty owns the Accepted/Rejected decision. Status is the
// single coupling point between the two sides.
type Offer struct {
	ID              uuid.UUID   `json:"id"`
	ListingID       int64       `json:"listing_id"`
	ApplicantID     string      `json:"applicant_id"`
	CounterpartyID  string      `json:"counterparty_id"`
	ProposedAmount  int         `json:"proposed_amount"`
	Currency        string      `json:"currency"`
	MoveInDate      time.Time   `json:"move_in_date"`
	LeaseTermMonths int         `json:"lease_term_months"`
	Status          OfferStatus `json:"status"`
	RevisionCount   int         `json:"revision_count"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OfferDecision is a counterparty decision event delivered over the decision
// queue. The applicant's workflow never shares memory with the counterparty
// dashboard; decisions travel as messages.
type OfferDecision struct {
	OfferID   uuid.UUID   `json:"offer_id"`
	Status    OfferStatus `json:"status"`
	DecidedAt time.Time   `json:"decided_at"`
}
