package workflow

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homematch/server/internal/models"
)

var (
	ErrInstanceNotFound = errors.New("workflow instance not found")
	ErrInstanceExists   = errors.New("an active workflow already exists for this applicant and listing")
)

// SnapshotStore persists workflow snapshots so stage survives restarts.
type SnapshotStore interface {
	SaveSnapshot(snap *models.WorkflowSnapshot) error
	ListSnapshots() ([]*models.WorkflowSnapshot, error)
}

// OfferGetter loads offers when instances are rebuilt from snapshots.
type OfferGetter interface {
	GetOffer(id uuid.UUID) (*models.Offer, error)
}

// Manager holds the active workflow instances, enforces the one instance per
// (applicant, listing) rule, and persists a snapshot after every mutation.
// The map is guarded for concurrent HTTP access; each individual instance is
// still advanced by a single actor.
type Manager struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
	byPair    map[string]uuid.UUID
	byOffer   map[uuid.UUID]uuid.UUID
	store     SnapshotStore
	collab    Collaborators
	logger    *logrus.Logger
}

// NewManager creates a workflow manager.
func NewManager(store SnapshotStore, collab Collaborators, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Manager{
		instances: make(map[uuid.UUID]*Instance),
		byPair:    make(map[string]uuid.UUID),
		byOffer:   make(map[uuid.UUID]uuid.UUID),
		store:     store,
		collab:    collab,
		logger:    logger,
	}
}

func pairKey(applicantID string, listingID int64) string {
	return fmt.Sprintf("%s|%d", applicantID, listingID)
}

// Restore rebuilds active instances from persisted snapshots. Completed and
// terminated workflows stay archived.
func (m *Manager) Restore(offers OfferGetter) error {
	snapshots, err := m.store.ListSnapshots()
	if err != nil {
		return fmt.Errorf("failed to list workflow snapshots: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, snap := range snapshots {
		if snap.Terminated || snap.Stage == models.StageComplete {
			continue
		}
		offer, err := offers.GetOffer(snap.OfferID)
		if err != nil {
			m.logger.WithError(err).WithField("workflow_id", snap.ID).Error("Failed to load offer for snapshot")
			continue
		}
		inst := NewFromSnapshot(snap, offer, m.collab, m.logger)
		m.index(inst)
	}

	m.logger.WithField("count", len(m.instances)).Info("Restored workflow instances")
	return nil
}

// Create opens a workflow for a freshly submitted offer.
func (m *Manager) Create(offer *models.Offer) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(offer.ApplicantID, offer.ListingID)
	if _, exists := m.byPair[key]; exists {
		return nil, ErrInstanceExists
	}

	inst := New(offer, m.collab, m.logger)
	m.index(inst)
	m.persist(inst)
	return inst, nil
}

func (m *Manager) index(inst *Instance) {
	m.instances[inst.ID()] = inst
	m.byPair[pairKey(inst.Offer().ApplicantID, inst.Offer().ListingID)] = inst.ID()
	m.byOffer[inst.Offer().ID] = inst.ID()
}

func (m *Manager) remove(inst *Instance) {
	delete(m.instances, inst.ID())
	delete(m.byPair, pairKey(inst.Offer().ApplicantID, inst.Offer().ListingID))
	delete(m.byOffer, inst.Offer().ID)
}

// HasActive reports whether an active workflow already exists for the
// applicant and listing pair. Callers can check before creating the offer a
// new workflow would be bound to.
func (m *Manager) HasActive(applicantID string, listingID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.byPair[pairKey(applicantID, listingID)]
	return exists
}

// Get returns the active instance with the given ID.
func (m *Manager) Get(id uuid.UUID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst, nil
}

// GetByOffer returns the active instance bound to an offer.
func (m *Manager) GetByOffer(offerID uuid.UUID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byOffer[offerID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return m.instances[id], nil
}

// Active returns all active instances.
func (m *Manager) Active() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		active = append(active, inst)
	}
	return active
}

// Persist saves the instance's snapshot and archives it when it has reached
// its end of life.
func (m *Manager) Persist(inst *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist(inst)

	terminated, _ := inst.Terminated()
	if terminated || inst.Stage() == models.StageComplete {
		m.remove(inst)
	}
}

func (m *Manager) persist(inst *Instance) {
	if err := m.store.SaveSnapshot(inst.Snapshot()); err != nil {
		m.logger.WithError(err).WithField("workflow_id", inst.ID()).Error("Failed to persist workflow snapshot")
	}
}

// Terminate ends the workflow bound to an offer, if one is active. Used when
// a rejection or withdrawal arrives over the decision queue.
func (m *Manager) Terminate(offerID uuid.UUID, status models.OfferStatus) error {
	inst, err := m.GetByOffer(offerID)
	if err != nil {
		return err
	}
	inst.Terminate(status)
	m.Persist(inst)
	return nil
}
