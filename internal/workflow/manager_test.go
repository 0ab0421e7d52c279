package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homematch/server/internal/models"
)

type memSnapshotStore struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]*models.WorkflowSnapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: make(map[uuid.UUID]*models.WorkflowSnapshot)}
}

func (s *memSnapshotStore) SaveSnapshot(snap *models.WorkflowSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

func (s *memSnapshotStore) ListSnapshots() ([]*models.WorkflowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.WorkflowSnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	return out, nil
}

type memOfferGetter struct {
	offers map[uuid.UUID]*models.Offer
}

func (g *memOfferGetter) GetOffer(id uuid.UUID) (*models.Offer, error) {
	offer, ok := g.offers[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return offer, nil
}

func TestManager_CreateEnforcesOnePerPair(t *testing.T) {
	collab := &fakeCollab{}
	m := NewManager(newMemSnapshotStore(), collab.collaborators(), logrus.New())

	offer := testOffer()
	assert.False(t, m.HasActive(offer.ApplicantID, offer.ListingID))
	_, err := m.Create(offer)
	require.NoError(t, err)
	assert.True(t, m.HasActive(offer.ApplicantID, offer.ListingID))

	// Same applicant and listing, different offer.
	duplicate := testOffer()
	duplicate.ID = uuid.New()
	_, err = m.Create(duplicate)
	assert.Equal(t, ErrInstanceExists, err)

	// A different listing is fine.
	other := testOffer()
	other.ID = uuid.New()
	other.ListingID = 99
	assert.False(t, m.HasActive(other.ApplicantID, other.ListingID))
	_, err = m.Create(other)
	assert.NoError(t, err)
}

func TestManager_PersistArchivesTerminated(t *testing.T) {
	collab := &fakeCollab{}
	store := newMemSnapshotStore()
	m := NewManager(store, collab.collaborators(), logrus.New())

	offer := testOffer()
	inst, err := m.Create(offer)
	require.NoError(t, err)

	inst.Terminate(models.OfferStatusWithdrawn)
	m.Persist(inst)

	// Archived: no longer active, snapshot retained, pair freed up.
	_, err = m.Get(inst.ID())
	assert.Equal(t, ErrInstanceNotFound, err)
	snaps, _ := store.ListSnapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Terminated)
	assert.False(t, m.HasActive(offer.ApplicantID, offer.ListingID))

	fresh := testOffer()
	fresh.ID = uuid.New()
	_, err = m.Create(fresh)
	assert.NoError(t, err)
}

func TestManager_Restore(t *testing.T) {
	collab := &fakeCollab{status: models.OfferStatusAccepted}
	store := newMemSnapshotStore()

	m := NewManager(store, collab.collaborators(), logrus.New())
	offer := testOffer()
	inst, err := m.Create(offer)
	require.NoError(t, err)
	require.NoError(t, inst.Advance(context.Background()))
	m.Persist(inst)

	// A terminated workflow must stay archived after a restart.
	deadOffer := testOffer()
	deadOffer.ID = uuid.New()
	deadOffer.ApplicantID = "applicant-2"
	dead := New(deadOffer, collab.collaborators(), logrus.New())
	dead.Terminate(models.OfferStatusRejected)
	require.NoError(t, store.SaveSnapshot(dead.Snapshot()))

	restartedManager := NewManager(store, collab.collaborators(), logrus.New())
	getter := &memOfferGetter{offers: map[uuid.UUID]*models.Offer{
		offer.ID:     offer,
		deadOffer.ID: deadOffer,
	}}
	require.NoError(t, restartedManager.Restore(getter))

	restored, err := restartedManager.Get(inst.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StageApplication, restored.Stage())

	_, err = restartedManager.Get(dead.ID())
	assert.Equal(t, ErrInstanceNotFound, err)
}

func TestManager_TerminateByOffer(t *testing.T) {
	collab := &fakeCollab{}
	m := NewManager(newMemSnapshotStore(), collab.collaborators(), logrus.New())

	offer := testOffer()
	inst, err := m.Create(offer)
	require.NoError(t, err)

	require.NoError(t, m.Terminate(offer.ID, models.OfferStatusRejected))

	terminated, status := inst.Terminated()
	assert.True(t, terminated)
	assert.Equal(t, models.OfferStatusRejected, status)

	// Unknown offers are reported, not ignored.
	err = m.Terminate(uuid.New(), models.OfferStatusRejected)
	assert.Equal(t, ErrInstanceNotFound, err)
}
