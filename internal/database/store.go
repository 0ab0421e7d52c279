package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homematch/server/internal/models"
	"homematch/server/internal/offers"
)

// Store is the gorm-backed persistence layer for the transaction core. It
// implements the offer store, the workflow snapshot store and the workflow
// collaborator interfaces against the same sqlite database the raw query
// layer reads.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewStore creates a store on top of an open gorm connection.
func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying gorm handle for transactional callers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

type offerRow struct {
	ID              string `gorm:"primaryKey"`
	ListingID       int64
	ApplicantID     string
	CounterpartyID  string
	ProposedAmount  int
	Currency        string
	MoveInDate      time.Time
	LeaseTermMonths int
	Status          string
	RevisionCount   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (offerRow) TableName() string { return "offers" }

func toOfferRow(offer *models.Offer) *offerRow {
	return &offerRow{
		ID:              offer.ID.String(),
		ListingID:       offer.ListingID,
		ApplicantID:     offer.ApplicantID,
		CounterpartyID:  offer.CounterpartyID,
		ProposedAmount:  offer.ProposedAmount,
		Currency:        offer.Currency,
		MoveInDate:      offer.MoveInDate,
		LeaseTermMonths: offer.LeaseTermMonths,
		Status:          string(offer.Status),
		RevisionCount:   offer.RevisionCount,
		CreatedAt:       offer.CreatedAt,
		UpdatedAt:       offer.UpdatedAt,
	}
}

func (r *offerRow) toModel() (*models.Offer, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed offer id %q: %w", r.ID, err)
	}
	return &models.Offer{
		ID:              id,
		ListingID:       r.ListingID,
		ApplicantID:     r.ApplicantID,
		CounterpartyID:  r.CounterpartyID,
		ProposedAmount:  r.ProposedAmount,
		Currency:        r.Currency,
		MoveInDate:      r.MoveInDate,
		LeaseTermMonths: r.LeaseTermMonths,
		Status:          models.OfferStatus(r.Status),
		RevisionCount:   r.RevisionCount,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

// SaveOffer inserts or updates an offer row.
func (s *Store) SaveOffer(offer *models.Offer) error {
	row := toOfferRow(offer)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// GetOffer returns the stored offer.
func (s *Store) GetOffer(id uuid.UUID) (*models.Offer, error) {
	var row offerRow
	err := s.db.Where("id = ?", id.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, offers.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// GetOfferStatus is a fresh read of the status column.
func (s *Store) GetOfferStatus(id uuid.UUID) (models.OfferStatus, error) {
	var row offerRow
	err := s.db.Select("status").Where("id = ?", id.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", offers.ErrOfferNotFound
	}
	if err != nil {
		return "", err
	}
	return models.OfferStatus(row.Status), nil
}

// UpdateOfferStatus transitions an offer with a compare-and-set on the stored
// status, so a decision racing another status change fails instead of
// overwriting it.
func (s *Store) UpdateOfferStatus(id uuid.UUID, from, to models.OfferStatus) error {
	res := s.db.Model(&offerRow{}).
		Where("id = ? AND status = ?", id.String(), string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetOfferStatus(id); err != nil {
			return err
		}
		return offers.ErrNotPending
	}
	return nil
}

// FetchOfferStatus lets workflow instances re-read the status row on every
// guard check. It is the same fresh read the offer service uses.
func (s *Store) FetchOfferStatus(ctx context.Context, offerID uuid.UUID) (models.OfferStatus, error) {
	var row offerRow
	err := s.db.WithContext(ctx).Select("status").Where("id = ?", offerID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", offers.ErrOfferNotFound
	}
	if err != nil {
		return "", err
	}
	return models.OfferStatus(row.Status), nil
}

type applicationRow struct {
	WorkflowID    string `gorm:"primaryKey"`
	FullName      string
	Email         string
	Phone         string
	Employer      string
	MonthlyIncome int
	AgreeToCredit bool
	AgreeToTerms  bool
	SubmittedAt   *time.Time
}

func (applicationRow) TableName() string { return "applications" }

// PersistApplication stores the submitted application record.
func (s *Store) PersistApplication(ctx context.Context, workflowID uuid.UUID, record *models.ApplicationRecord) error {
	row := &applicationRow{
		WorkflowID:    workflowID.String(),
		FullName:      record.FullName,
		Email:         record.Email,
		Phone:         record.Phone,
		Employer:      record.Employer,
		MonthlyIncome: record.MonthlyIncome,
		AgreeToCredit: record.AgreeToCredit,
		AgreeToTerms:  record.AgreeToTerms,
		SubmittedAt:   record.SubmittedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workflow_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

type documentRow struct {
	WorkflowID string `gorm:"primaryKey"`
	Slot       string `gorm:"primaryKey"`
	UploadedAt time.Time
}

func (documentRow) TableName() string { return "documents" }

// MarkDocumentUploaded records an upload. Re-marking an already-uploaded slot
// is a no-op on the store side too.
func (s *Store) MarkDocumentUploaded(ctx context.Context, workflowID uuid.UUID, slot models.DocumentSlot) error {
	row := &documentRow{
		WorkflowID: workflowID.String(),
		Slot:       string(slot),
		UploadedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "slot"}},
		DoNothing: true,
	}).Create(row).Error
}

type paymentRow struct {
	ID          string `gorm:"primaryKey"`
	WorkflowID  string
	AmountDue   string
	Currency    string
	Method      string
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

func (paymentRow) TableName() string { return "payments" }

// SubmitPayment records the payment in the ledger and confirms it. This is
// the in-process stand-in for a payment provider; deployments that charge
// real money point the workflow at a provider-backed gateway instead.
func (s *Store) SubmitPayment(ctx context.Context, record *models.PaymentRecord) (bool, error) {
	now := time.Now().UTC()
	row := &paymentRow{
		ID:          record.ID.String(),
		WorkflowID:  record.WorkflowID.String(),
		AmountDue:   record.AmountDue.String(),
		Currency:    record.Currency,
		Method:      record.Method,
		Completed:   true,
		CompletedAt: &now,
		CreatedAt:   record.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

type snapshotRow struct {
	ID             string `gorm:"primaryKey"`
	OfferID        string
	ListingID      int64
	ApplicantID    string
	Stage          string
	Terminated     bool
	TerminalStatus string
	State          string
	UpdatedAt      time.Time
}

func (snapshotRow) TableName() string { return "workflow_snapshots" }

// SaveSnapshot persists a workflow snapshot. The full snapshot travels as
// JSON in the state column; the indexed columns exist for queries.
func (s *Store) SaveSnapshot(snap *models.WorkflowSnapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow snapshot: %w", err)
	}
	row := &snapshotRow{
		ID:             snap.ID.String(),
		OfferID:        snap.OfferID.String(),
		ListingID:      snap.ListingID,
		ApplicantID:    snap.ApplicantID,
		Stage:          snap.Stage.String(),
		Terminated:     snap.Terminated,
		TerminalStatus: string(snap.TerminalStatus),
		State:          string(state),
		UpdatedAt:      snap.UpdatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// ListSnapshots returns every persisted workflow snapshot.
func (s *Store) ListSnapshots() ([]*models.WorkflowSnapshot, error) {
	var rows []snapshotRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}

	snapshots := make([]*models.WorkflowSnapshot, 0, len(rows))
	for _, row := range rows {
		var snap models.WorkflowSnapshot
		if err := json.Unmarshal([]byte(row.State), &snap); err != nil {
			s.logger.WithError(err).WithField("workflow_id", row.ID).Error("Skipping unreadable workflow snapshot")
			continue
		}
		snapshots = append(snapshots, &snap)
	}
	return snapshots, nil
}

type decisionRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OfferID   string `gorm:"column:offer_id"`
	Status    string
	DecidedAt time.Time
	CreatedAt time.Time
}

func (decisionRow) TableName() string { return "offer_decisions" }

// InsertDecision appends a decision to the audit trail inside the caller's
// transaction.
func InsertDecision(tx *gorm.DB, decision *models.OfferDecision) error {
	row := &decisionRow{
		OfferID:   decision.OfferID.String(),
		Status:    string(decision.Status),
		DecidedAt: decision.DecidedAt,
		CreatedAt: time.Now().UTC(),
	}
	return tx.Create(row).Error
}
