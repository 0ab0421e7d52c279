package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// DecisionQueue is an in-memory queue carrying counterparty offer decisions
// from the landlord side to the applicant side. It is the only channel the
// two state machines share; neither side touches the other's memory.
type DecisionQueue struct {
	items    chan *models.OfferDecision
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func(*models.OfferDecision) error
}

// NewDecisionQueue creates a new decision queue with the specified buffer size
func NewDecisionQueue(bufferSize int, logger *logrus.Logger) *DecisionQueue {
	return &DecisionQueue{
		items:    make(chan *models.OfferDecision, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(*models.OfferDecision) error, 0),
	}
}

// Publish adds a decision to the queue
func (q *DecisionQueue) Publish(decision *models.OfferDecision) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	// Non-blocking send to prevent deadlocks
	select {
	case q.items <- decision:
		q.logger.WithFields(logrus.Fields{
			"offer_id": decision.OfferID,
			"status":   decision.Status,
		}).Debug("Published decision to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each decision
func (q *DecisionQueue) Subscribe(handler func(*models.OfferDecision) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *DecisionQueue) Start() {
	go q.process()
}

// process handles the queue processing loop
func (q *DecisionQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case decision := <-q.items:
			q.dispatch(decision)
		}
	}
}

// dispatch sends the decision to all subscribed handlers
func (q *DecisionQueue) dispatch(decision *models.OfferDecision) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(decision); err != nil {
			q.logger.WithError(err).Error("Handler failed to process decision")
		}
	}
}

// Close stops the queue and prevents new items from being added. The items
// channel is left open: closing it would let the processing loop receive a
// nil decision and hand it to the handlers.
func (q *DecisionQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	return nil
}

// Len returns the current number of decisions in the queue
func (q *DecisionQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *DecisionQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
