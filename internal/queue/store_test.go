package queue

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

const testSession = "ABC123"

func pending(participantID, viewerID int64) models.ParticipantOrder {
	return models.ParticipantOrder{
		Status:        models.ParticipantStatusPending,
		ParticipantID: participantID,
		ViewerID:      viewerID,
	}
}

func viewerIDs(orders []models.ParticipantOrder) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ViewerID)
	}
	return ids
}

func TestSortedSnapshotIgnoresInsertionOrder(t *testing.T) {
	entries := []models.ParticipantOrder{
		pending(1, 101),
		pending(2, 102).WithStatus(models.ParticipantStatusApproved),
		pending(3, 103).WithFixed(true),
		pending(4, 104).WithStatus(models.ParticipantStatusApproved),
		pending(5, 105),
		pending(6, 106).WithFixed(true).WithStatus(models.ParticipantStatusApproved),
	}
	want := []int64{106, 103, 102, 104, 101, 105}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		s := NewStore()
		perm := rnd.Perm(len(entries))
		for _, idx := range perm {
			s.Add(testSession, entries[idx])
		}
		require.Equal(t, want, viewerIDs(s.SortedSnapshot(testSession)), "permutation %v", perm)
	}
}

func TestAddRemoveRank(t *testing.T) {
	s := NewStore()
	s.Add(testSession, pending(1, 42))

	rank, ok := s.Rank(testSession, 42)
	require.True(t, ok)
	assert.Equal(t, 1, rank)

	assert.True(t, s.Remove(testSession, 42))
	assert.False(t, s.Remove(testSession, 42))

	_, ok = s.Rank(testSession, 42)
	assert.False(t, ok)
	assert.Empty(t, s.SortedSnapshot(testSession))
}

func TestUpdateReplacesByViewer(t *testing.T) {
	s := NewStore()
	s.Add(testSession, pending(1, 10))
	s.Add(testSession, pending(2, 20))
	s.Add(testSession, pending(3, 30))

	s.Update(testSession, pending(3, 30).WithFixed(true))
	s.Update(testSession, pending(3, 30).WithFixed(true))
	s.Add(testSession, pending(1, 10).WithStatus(models.ParticipantStatusApproved))

	snap := s.SortedSnapshot(testSession)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{30, 10, 20}, viewerIDs(snap))

	rank, ok := s.Rank(testSession, 20)
	require.True(t, ok)
	assert.Equal(t, 3, rank)
}

func TestAdvanceRoundOnlyTopEntries(t *testing.T) {
	s := NewStore()
	for i := int64(1); i <= 5; i++ {
		s.Add(testSession, pending(i, 100+i))
	}

	advanced := s.AdvanceRound(testSession, 2)
	require.Len(t, advanced, 2)
	assert.Equal(t, []int64{101, 102}, viewerIDs(advanced))

	snap := s.SortedSnapshot(testSession)
	require.Len(t, snap, 5)
	for i, o := range snap {
		if i < 2 {
			assert.Equal(t, 1, o.Round, "viewer %d", o.ViewerID)
		} else {
			assert.Equal(t, 0, o.Round, "viewer %d", o.ViewerID)
		}
	}

	got, ok := s.Get(testSession, 101)
	require.True(t, ok)
	assert.Equal(t, 1, got.Round)
}

func TestAdvanceRoundCountLargerThanQueue(t *testing.T) {
	s := NewStore()
	s.Add(testSession, pending(1, 1))

	assert.Len(t, s.AdvanceRound(testSession, 10), 1)
	assert.Empty(t, s.AdvanceRound("missing", 3))
	assert.Empty(t, s.AdvanceRound(testSession, 0))
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Add(testSession, pending(id, 1000+id))
		}(i)
	}
	wg.Wait()

	snap := s.SortedSnapshot(testSession)
	require.Len(t, snap, 100)
	assert.Equal(t, 100, s.Len(testSession))
	for i := 1; i < len(snap); i++ {
		assert.Negative(t, models.CompareParticipantOrder(snap[i-1], snap[i]))
	}
}

func TestSnapshotNeverSeesPartialAdvance(t *testing.T) {
	s := NewStore()
	for i := int64(1); i <= 10; i++ {
		s.Add(testSession, pending(i, i))
	}

	const advances = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < advances; i++ {
			s.AdvanceRound(testSession, 4)
		}
	}()

	for {
		snap := s.SortedSnapshot(testSession)
		require.Len(t, snap, 10)
		for i := 1; i < 4; i++ {
			require.Equal(t, snap[0].Round, snap[i].Round, "top group saw a mixed advance")
		}
		select {
		case <-done:
			assert.Equal(t, advances, s.SortedSnapshot(testSession)[0].Round)
			return
		default:
		}
	}
}

func TestRemoveSessionDropsQueue(t *testing.T) {
	s := NewStore()
	s.Add(testSession, pending(1, 1))
	s.Add("OTHER1", pending(1, 1))

	s.RemoveSession(testSession)
	s.RemoveSession(testSession)

	assert.Empty(t, s.SortedSnapshot(testSession))
	assert.Equal(t, []string{"OTHER1"}, s.Sessions())

	s.Add(testSession, pending(2, 2))
	assert.Equal(t, 1, s.Len(testSession))

	s.Clear()
	assert.Empty(t, s.Sessions())
}

func TestRemovingLastEntryDropsQueue(t *testing.T) {
	s := NewStore()
	s.Add(testSession, pending(1, 1))
	require.True(t, s.Remove(testSession, 1))

	assert.Empty(t, s.Sessions())
}
