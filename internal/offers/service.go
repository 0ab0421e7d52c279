package offers

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
)

var (
	ErrOfferNotFound = errors.New("offer not found")
	ErrOfferTerminal = errors.New("offer is in a terminal status")
	ErrNotPending    = errors.New("offer is no longer pending")
	ErrInvalidAmount = errors.New("proposed amount must be positive")
)

// Store is the persistence boundary for offers. GetStatus must always be a
// fresh read; the store row is the source of truth for both sides of a
// transaction.
type Store interface {
	SaveOffer(offer *models.Offer) error
	GetOffer(id uuid.UUID) (*models.Offer, error)
	// UpdateOfferStatus transitions an offer from one status to another and
	// fails if the stored status no longer matches from.
	UpdateOfferStatus(id uuid.UUID, from, to models.OfferStatus) error
	GetOfferStatus(id uuid.UUID) (models.OfferStatus, error)
}

// DecisionPublisher delivers counterparty decisions to interested consumers.
type DecisionPublisher interface {
	Publish(decision *models.OfferDecision) error
}

// Service owns the offer lifecycle: submission and revision by the applicant,
// accept/reject by the counterparty, withdrawal by the applicant. Decisions
// are published as messages, never shared in memory.
type Service struct {
	store     Store
	publisher DecisionPublisher
	logger    *logrus.Logger
}

// NewService creates an offer lifecycle service.
func NewService(store Store, publisher DecisionPublisher, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitTerms are the applicant's inputs when opening a transaction.
type SubmitTerms struct {
	ListingID       int64
	ApplicantID     string
	CounterpartyID  string
	ProposedAmount  int
	Currency        string
	MoveInDate      time.Time
	LeaseTermMonths int
}

// Submit creates a new pending offer against a listing.
func (s *Service) Submit(terms SubmitTerms) (*models.Offer, error) {
	if terms.ProposedAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if terms.Currency == "" {
		terms.Currency = "EUR"
	}

	now := time.Now().UTC()
	offer := &models.Offer{
		ID:              uuid.New(),
		ListingID:       terms.ListingID,
		ApplicantID:     terms.ApplicantID,
		CounterpartyID:  terms.CounterpartyID,
		ProposedAmount:  terms.ProposedAmount,
		Currency:        terms.Currency,
		MoveInDate:      terms.MoveInDate,
		LeaseTermMonths: terms.LeaseTermMonths,
		Status:          models.OfferStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.SaveOffer(offer); err != nil {
		return nil, fmt.Errorf("failed to save offer: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"offer_id":   offer.ID,
		"listing_id": offer.ListingID,
		"amount":     offer.ProposedAmount,
	}).Info("Offer submitted")

	return offer, nil
}

// Revise updates the proposed amount of a still-pending offer. Each revision
// resets the counterparty's response requirement; it never advances the
// applicant's workflow.
func (s *Service) Revise(id uuid.UUID, newAmount int) (*models.Offer, error) {
	if newAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	offer, err := s.store.GetOffer(id)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrNotPending
	}

	offer.ProposedAmount = newAmount
	offer.RevisionCount++
	offer.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveOffer(offer); err != nil {
		return nil, fmt.Errorf("failed to save revised offer: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"offer_id": offer.ID,
		"amount":   offer.ProposedAmount,
		"revision": offer.RevisionCount,
	}).Info("Offer revised")

	return offer, nil
}

// Accept records the counterparty's acceptance of a pending offer.
func (s *Service) Accept(id uuid.UUID) error {
	return s.decide(id, models.OfferStatusAccepted)
}

// Reject records the counterparty's rejection of a pending offer.
func (s *Service) Reject(id uuid.UUID) error {
	return s.decide(id, models.OfferStatusRejected)
}

// decide applies a counterparty decision with a compare-and-set so a decision
// racing another status change fails instead of overwriting it.
func (s *Service) decide(id uuid.UUID, to models.OfferStatus) error {
	status, err := s.store.GetOfferStatus(id)
	if err != nil {
		return err
	}
	if status.IsTerminal() {
		return ErrOfferTerminal
	}

	if err := s.store.UpdateOfferStatus(id, models.OfferStatusPending, to); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"offer_id": id,
		"status":   to,
	}).Info("Offer decided")

	return s.publish(id, to)
}

// Withdraw lets the applicant abandon the transaction. Withdrawal is allowed
// while the offer is pending or already accepted, but not after a rejection
// or an earlier withdrawal.
func (s *Service) Withdraw(id uuid.UUID) error {
	status, err := s.store.GetOfferStatus(id)
	if err != nil {
		return err
	}
	switch status {
	case models.OfferStatusRejected, models.OfferStatusWithdrawn:
		return ErrOfferTerminal
	}

	if err := s.store.UpdateOfferStatus(id, status, models.OfferStatusWithdrawn); err != nil {
		return err
	}

	s.logger.WithField("offer_id", id).Info("Offer withdrawn")

	return s.publish(id, models.OfferStatusWithdrawn)
}

// Status is a fresh read of the stored offer status.
func (s *Service) Status(id uuid.UUID) (models.OfferStatus, error) {
	return s.store.GetOfferStatus(id)
}

// Get returns the stored offer.
func (s *Service) Get(id uuid.UUID) (*models.Offer, error) {
	return s.store.GetOffer(id)
}

func (s *Service) publish(id uuid.UUID, status models.OfferStatus) error {
	if s.publisher == nil {
		return nil
	}
	decision := &models.OfferDecision{
		OfferID:   id,
		Status:    status,
		DecidedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(decision); err != nil {
		// The store already holds the decision; delivery is best effort and
		// the sweep scheduler reconciles missed events.
		s.logger.WithError(err).WithField("offer_id", id).Error("Failed to publish offer decision")
	}
	return nil
}
