package queue

import (
	"slices"
	"sync"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

// Store keeps one ranked lineup per session. Operations on different sessions
// never contend: each session queue carries its own lock.
type Store interface {
	// Add inserts order, replacing any entry with the same viewer id.
	Add(sessionCode string, order models.ParticipantOrder)
	// Update has the same replace semantics as Add.
	Update(sessionCode string, order models.ParticipantOrder)
	Remove(sessionCode string, viewerID int64) bool
	Get(sessionCode string, viewerID int64) (models.ParticipantOrder, bool)
	// Rank returns the 1-based position of viewerID.
	Rank(sessionCode string, viewerID int64) (int, bool)
	SortedSnapshot(sessionCode string) []models.ParticipantOrder
	// AdvanceRound bumps the round of the first count entries and returns their new values.
	AdvanceRound(sessionCode string, count int) []models.ParticipantOrder
	Len(sessionCode string) int
	RemoveSession(sessionCode string)
	Sessions() []string
	Clear()
}

type sessionQueue struct {
	mu       sync.Mutex
	removed  bool
	items    []models.ParticipantOrder
	byViewer map[int64]models.ParticipantOrder
}

type memoryStore struct {
	queues sync.Map // sessionCode -> *sessionQueue
}

func NewStore() Store {
	return &memoryStore{}
}

// withQueue runs fn under the session queue's lock, creating the queue when
// create is set. A queue removed concurrently is replaced by a fresh one.
func (s *memoryStore) withQueue(sessionCode string, create bool, fn func(q *sessionQueue)) bool {
	for {
		var q *sessionQueue
		if create {
			v, _ := s.queues.LoadOrStore(sessionCode, &sessionQueue{byViewer: make(map[int64]models.ParticipantOrder)})
			q = v.(*sessionQueue)
		} else {
			v, ok := s.queues.Load(sessionCode)
			if !ok {
				return false
			}
			q = v.(*sessionQueue)
		}

		q.mu.Lock()
		if q.removed {
			q.mu.Unlock()
			if !create {
				return false
			}
			continue
		}
		fn(q)
		q.mu.Unlock()
		return true
	}
}

func (s *memoryStore) Add(sessionCode string, order models.ParticipantOrder) {
	s.withQueue(sessionCode, true, func(q *sessionQueue) {
		q.replace(order)
	})
}

func (s *memoryStore) Update(sessionCode string, order models.ParticipantOrder) {
	s.Add(sessionCode, order)
}

func (s *memoryStore) Remove(sessionCode string, viewerID int64) bool {
	var removed bool
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		removed = q.remove(viewerID)
		if len(q.items) == 0 {
			q.removed = true
			s.queues.CompareAndDelete(sessionCode, q)
		}
	})
	return removed
}

func (s *memoryStore) Get(sessionCode string, viewerID int64) (models.ParticipantOrder, bool) {
	var (
		order models.ParticipantOrder
		found bool
	)
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		order, found = q.byViewer[viewerID]
	})
	return order, found
}

func (s *memoryStore) Rank(sessionCode string, viewerID int64) (int, bool) {
	rank := 0
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		if idx, ok := q.indexOf(viewerID); ok {
			rank = idx + 1
		}
	})
	return rank, rank > 0
}

func (s *memoryStore) SortedSnapshot(sessionCode string) []models.ParticipantOrder {
	var snap []models.ParticipantOrder
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		snap = slices.Clone(q.items)
	})
	if snap == nil {
		return []models.ParticipantOrder{}
	}
	return snap
}

func (s *memoryStore) AdvanceRound(sessionCode string, count int) []models.ParticipantOrder {
	var advanced []models.ParticipantOrder
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		n := min(count, len(q.items))
		if n <= 0 {
			return
		}
		advanced = make([]models.ParticipantOrder, 0, n)
		// Round is not a ranking input, so positions are unchanged.
		for i := 0; i < n; i++ {
			next := q.items[i].WithRound(q.items[i].Round + 1)
			q.items[i] = next
			q.byViewer[next.ViewerID] = next
			advanced = append(advanced, next)
		}
	})
	return advanced
}

func (s *memoryStore) Len(sessionCode string) int {
	n := 0
	s.withQueue(sessionCode, false, func(q *sessionQueue) {
		n = len(q.items)
	})
	return n
}

func (s *memoryStore) RemoveSession(sessionCode string) {
	v, ok := s.queues.LoadAndDelete(sessionCode)
	if !ok {
		return
	}
	q := v.(*sessionQueue)
	q.mu.Lock()
	q.removed = true
	q.items = nil
	q.byViewer = nil
	q.mu.Unlock()
}

func (s *memoryStore) Sessions() []string {
	var codes []string
	s.queues.Range(func(key, _ any) bool {
		codes = append(codes, key.(string))
		return true
	})
	slices.Sort(codes)
	return codes
}

func (s *memoryStore) Clear() {
	for _, code := range s.Sessions() {
		s.RemoveSession(code)
	}
}

// replace removes any entry for the viewer and inserts order at its ranked position.
func (q *sessionQueue) replace(order models.ParticipantOrder) {
	q.remove(order.ViewerID)
	idx, _ := slices.BinarySearchFunc(q.items, order, models.CompareParticipantOrder)
	q.items = slices.Insert(q.items, idx, order)
	q.byViewer[order.ViewerID] = order
}

func (q *sessionQueue) remove(viewerID int64) bool {
	idx, ok := q.indexOf(viewerID)
	if !ok {
		return false
	}
	q.items = slices.Delete(q.items, idx, idx+1)
	delete(q.byViewer, viewerID)
	return true
}

func (q *sessionQueue) indexOf(viewerID int64) (int, bool) {
	current, ok := q.byViewer[viewerID]
	if !ok {
		return 0, false
	}
	idx, found := slices.BinarySearchFunc(q.items, current, models.CompareParticipantOrder)
	if !found || q.items[idx].ViewerID != viewerID {
		return 0, false
	}
	return idx, true
}
