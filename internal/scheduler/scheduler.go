package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
	"homematch/server/internal/workflow"
)

// StatusReader is a fresh read of an offer's stored status.
type StatusReader interface {
	Status(id uuid.UUID) (models.OfferStatus, error)
}

// DecisionPublisher re-publishes decisions the queue may have missed.
type DecisionPublisher interface {
	Publish(decision *models.OfferDecision) error
}

// Scheduler periodically sweeps the active workflows and re-reads each
// offer's status. Decision delivery over the queue is best effort; the sweep
// is the reconciliation path that catches a rejection or withdrawal whose
// message was dropped, so no workflow waits forever on a dead offer.
type Scheduler struct {
	workflows *workflow.Manager
	offers    StatusReader
	publisher DecisionPublisher
	interval  time.Duration
	logger    *logrus.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
	jobMutex  sync.Mutex // Ensures sequential sweep execution
}

// NewScheduler creates a new scheduler sweeping at the given interval.
func NewScheduler(workflows *workflow.Manager, offers StatusReader, publisher DecisionPublisher, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		workflows: workflows,
		offers:    offers,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the scheduled sweeps
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler handles all scheduled sweeps
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run a startup sweep so restarts reconcile immediately.
	go s.Sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep re-reads the offer status behind every active workflow and publishes
// a decision event for any that turned terminal without the workflow hearing
// about it.
func (s *Scheduler) Sweep() {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	active := s.workflows.Active()
	s.logger.WithField("count", len(active)).Debug("Sweeping active workflows")

	for _, inst := range active {
		if terminated, _ := inst.Terminated(); terminated {
			continue
		}

		offerID := inst.Offer().ID
		status, err := s.offers.Status(offerID)
		if err != nil {
			s.logger.WithError(err).WithField("offer_id", offerID).Error("Sweep failed to read offer status")
			continue
		}

		switch status {
		case models.OfferStatusRejected, models.OfferStatusWithdrawn:
			s.logger.WithFields(logrus.Fields{
				"offer_id": offerID,
				"status":   status,
			}).Info("Sweep found terminal offer with live workflow")

			err := s.publisher.Publish(&models.OfferDecision{
				OfferID:   offerID,
				Status:    status,
				DecidedAt: time.Now().UTC(),
			})
			if err != nil {
				s.logger.WithError(err).WithField("offer_id", offerID).Error("Sweep failed to publish decision")
			}
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}
