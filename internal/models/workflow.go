package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stage is one of the five sequential phases an applicant's pursuit of a
// listing passes through. It is a closed enum rather than a free string so
// that persisted state round-trips without typo drift.
type Stage int

const (
	StageOffer Stage = iota
	StageApplication
	StageDocuments
	StagePayment
	StageComplete
)

var stageNames = map[Stage]string{
	StageOffer:       "offer",
	StageApplication: "application",
	StageDocuments:   "documents",
	StagePayment:     "payment",
	StageComplete:    "complete",
}

// String returns the string representation of a Stage.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Next returns the stage that follows s, and false when s is terminal.
func (s Stage) Next() (Stage, bool) {
	if s >= StageComplete || s < StageOffer {
		return s, false
	}
	return s + 1, true
}

// ParseStage converts a stored stage name back into a Stage.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == name {
			return stage, nil
		}
	}
	return StageOffer, fmt.Errorf("unknown workflow stage: %q", name)
}

// MarshalJSON encodes the stage as its name.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a stage from its name.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer so stages persist as their names.
func (s Stage) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Stage) Scan(src interface{}) error {
	name, ok := src.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into Stage", src)
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ApplicationRecord holds the personal and employment data an applicant
// submits once their offer has been accepted. Both consent flags must be set
// before the record can be submitted.
type ApplicationRecord struct {
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Employer      string     `json:"employer"`
	MonthlyIncome int        `json:"monthly_income"`
	AgreeToCredit bool       `json:"agree_to_credit"`
	AgreeToTerms  bool       `json:"agree_to_terms"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

// DocumentSlot identifies one required document in a document set.
type DocumentSlot string

const (
	DocumentIdentity    DocumentSlot = "identity"
	DocumentIncomeProof DocumentSlot = "income_proof"
	DocumentReference   DocumentSlot = "reference"
)

// RequiredDocumentSlots returns the fixed set of slots every applicant must
// fill before the documents stage can complete.
func RequiredDocumentSlots() []DocumentSlot {
	return []DocumentSlot{DocumentIdentity, DocumentIncomeProof, DocumentReference}
}

// DocumentSet tracks which required document slots have been uploaded.
type DocumentSet struct {
	Uploaded map[DocumentSlot]bool `json:"uploaded"`
}

// NewDocumentSet returns a document set with all required slots empty.
func NewDocumentSet() *DocumentSet {
	uploaded := make(map[DocumentSlot]bool, len(RequiredDocumentSlots()))
	for _, slot := range RequiredDocumentSlots() {
		uploaded[slot] = false
	}
	return &DocumentSet{Uploaded: uploaded}
}

// KnownSlot reports whether slot is one of the required slots.
func (d *DocumentSet) KnownSlot(slot DocumentSlot) bool {
	_, ok := d.Uploaded[slot]
	return ok
}

// MarkUploaded flags a slot as uploaded. Marking an already-uploaded slot is
// a no-op.
func (d *DocumentSet) MarkUploaded(slot DocumentSlot) {
	if d.KnownSlot(slot) {
		d.Uploaded[slot] = true
	}
}

// IsUploaded reports whether the slot has been uploaded.
func (d *DocumentSet) IsUploaded(slot DocumentSlot) bool {
	return d.Uploaded[slot]
}

// Complete reports whether every required slot has been uploaded.
func (d *DocumentSet) Complete() bool {
	for _, slot := range RequiredDocumentSlots() {
		if !d.Uploaded[slot] {
			return false
		}
	}
	return true
}

// Missing returns the required slots that have not been uploaded yet.
func (d *DocumentSet) Missing() []DocumentSlot {
	var missing []DocumentSlot
	for _, slot := range RequiredDocumentSlots() {
		if !d.Uploaded[slot] {
			missing = append(missing, slot)
		}
	}
	return missing
}

// PaymentRecord is the amount due to complete a rental transaction: first
// month plus deposit. Once Completed is set the record is immutable.
type PaymentRecord struct {
	ID          uuid.UUID       `json:"id"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	Currency    string          `json:"currency"`
	Method      string          `json:"method"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// WorkflowSnapshot is the serializable state of a workflow instance, persisted
// after every mutation so stage survives process restarts.
type WorkflowSnapshot struct {
	ID             uuid.UUID          `json:"id"`
	OfferID        uuid.UUID          `json:"offer_id"`
	ListingID      int64              `json:"listing_id"`
	ApplicantID    string             `json:"applicant_id"`
	Stage          Stage              `json:"stage"`
	Terminated     bool               `json:"terminated"`
	TerminalStatus OfferStatus        `json:"terminal_status,omitempty"`
	Application    *ApplicationRecord `json:"application,omitempty"`
	Documents      *DocumentSet       `json:"documents,omitempty"`
	Payment        *PaymentRecord     `json:"payment,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
