package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"homematch/server/config"
	"homematch/server/internal/database"
	"homematch/server/internal/models"
	"homematch/server/internal/queue"
	"homematch/server/internal/workflow"
)

// WorkflowTerminator ends the workflow bound to an offer when a terminal
// decision arrives.
type WorkflowTerminator interface {
	Terminate(offerID uuid.UUID, status models.OfferStatus) error
}

// OfferGetter loads the offer a decision refers to.
type OfferGetter interface {
	GetOffer(id uuid.UUID) (*models.Offer, error)
}

// Notifier pushes decision notifications to an external channel.
type Notifier interface {
	NotifyOfferDecision(offer *models.Offer, decision *models.OfferDecision) error
}

// DecisionProcessor consumes counterparty decisions from the queue, records
// them in the audit trail and reacts to terminal ones: a rejection or
// withdrawal ends the applicant's workflow. Acceptances need no push; the
// workflow re-reads the offer status on its next advance.
type DecisionProcessor struct {
	db        *gorm.DB
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.DecisionQueue
	workflows WorkflowTerminator
	offers    OfferGetter
	notifier  Notifier
}

// NewDecisionProcessor creates a new decision processor instance
func NewDecisionProcessor(db *gorm.DB, queue *queue.DecisionQueue, workflows WorkflowTerminator, offers OfferGetter, config *config.Config, logger *logrus.Logger) *DecisionProcessor {
	return &DecisionProcessor{
		db:        db,
		queue:     queue,
		workflows: workflows,
		offers:    offers,
		config:    config,
		logger:    logger,
	}
}

// SetNotifier attaches an optional notification channel.
func (p *DecisionProcessor) SetNotifier(notifier Notifier) {
	p.notifier = notifier
}

// Start registers the processor with the queue. The queue dispatches every
// decision to every registered handler, and the audit insert is append-only,
// so the processor must register exactly once: a second registration would
// record and notify each decision twice.
func (p *DecisionProcessor) Start() {
	p.queue.Subscribe(func(decision *models.OfferDecision) error {
		return p.processDecision(decision)
	})
}

// processDecision records a single decision with transaction and retry logic,
// then applies its side effects.
func (p *DecisionProcessor) processDecision(decision *models.OfferDecision) error {
	var err error
	for attempt := 0; attempt <= p.config.DecisionProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying decision processing, attempt %d of %d", attempt, p.config.DecisionProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.DecisionProcessing.RetryDelay) * time.Second)
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.InsertDecision(tx, decision); err != nil {
				return fmt.Errorf("failed to record offer decision: %w", err)
			}
			return nil
		})

		if err == nil {
			p.applyDecision(decision)
			return nil
		}

		p.logger.Errorf("Decision processing failed: %v", err)
	}

	return fmt.Errorf("failed to process decision after %d attempts: %w", p.config.DecisionProcessing.MaxRetries, err)
}

// applyDecision runs the side effects of a recorded decision.
func (p *DecisionProcessor) applyDecision(decision *models.OfferDecision) {
	switch decision.Status {
	case models.OfferStatusRejected, models.OfferStatusWithdrawn:
		err := p.workflows.Terminate(decision.OfferID, decision.Status)
		if err != nil && !errors.Is(err, workflow.ErrInstanceNotFound) {
			p.logger.WithError(err).WithField("offer_id", decision.OfferID).Error("Failed to terminate workflow")
		}
	}

	p.logger.WithFields(logrus.Fields{
		"offer_id": decision.OfferID,
		"status":   decision.Status,
	}).Info("Processed offer decision")

	if p.notifier == nil {
		return
	}
	offer, err := p.offers.GetOffer(decision.OfferID)
	if err != nil {
		p.logger.WithError(err).WithField("offer_id", decision.OfferID).Error("Failed to load offer for notification")
		return
	}
	if err := p.notifier.NotifyOfferDecision(offer, decision); err != nil {
		p.logger.WithError(err).Error("Failed to send decision notification")
	}
}
