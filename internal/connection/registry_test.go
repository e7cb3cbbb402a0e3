package connection

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type recordingSender struct {
	mu       sync.Mutex
	events   []models.Event
	closed   int
	closeErr error
}

func (s *recordingSender) Send(ctx context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.closeErr
}

func (s *recordingSender) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type closeRecord struct {
	key    ViewerKey
	conn   *Connection
	reason CloseReason
}

type closeLog struct {
	mu      sync.Mutex
	records []closeRecord
}

func (c *closeLog) listen(key ViewerKey, conn *Connection, reason CloseReason, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, closeRecord{key: key, conn: conn, reason: reason})
}

func (c *closeLog) snapshot() []closeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]closeRecord(nil), c.records...)
}

func newTestViewerRegistry(maxLifetime time.Duration) (Registry[ViewerKey], *closeLog) {
	r := NewViewerRegistry(Config{MaxLifetime: maxLifetime, Shards: 4}, logger.InitializeTestZapLogger())
	log := &closeLog{}
	r.SetCloseListener(log.listen)
	return r, log
}

func TestSubscribeTwiceKeepsOnlyNewest(t *testing.T) {
	r, log := newTestViewerRegistry(0)
	key := ViewerKey{SessionCode: "ABC123", MemberID: 42}

	firstSender := &recordingSender{}
	first, err := r.Subscribe(key, firstSender)
	require.NoError(t, err)

	second, err := r.Subscribe(key, &recordingSender{})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, first.State())
	assert.Equal(t, StateOpen, second.State())

	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())

	reason, _ := first.CloseReason()
	assert.Equal(t, ReasonReplaced, reason)
	assert.Equal(t, []models.EventType{models.EventConnectionReplaced}, firstSender.types())

	records := log.snapshot()
	require.Len(t, records, 1)
	assert.Same(t, first, records[0].conn)
	assert.Equal(t, ReasonReplaced, records[0].reason)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r, log := newTestViewerRegistry(0)
	key := ViewerKey{SessionCode: "ABC123", MemberID: 7}

	sender := &recordingSender{}
	c, err := r.Subscribe(key, sender)
	require.NoError(t, err)

	assert.True(t, r.Unsubscribe(key))
	assert.False(t, r.Unsubscribe(key))
	assert.False(t, r.Unsubscribe(ViewerKey{SessionCode: "NOPE00", MemberID: 1}))

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, sender.closed)
	assert.Len(t, log.snapshot(), 1)

	_, ok := r.Get(key)
	assert.False(t, ok)
}

func TestSelfUnregisterRunsOnce(t *testing.T) {
	r, log := newTestViewerRegistry(0)
	key := ViewerKey{SessionCode: "ABC123", MemberID: 9}

	sender := &recordingSender{}
	c, err := r.Subscribe(key, sender)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.Complete()
			} else {
				c.Fail(errors.New("broken pipe"))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, sender.closed)
	assert.Len(t, log.snapshot(), 1)
	assert.Equal(t, 0, r.Len())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}

	assert.ErrorIs(t, c.Send(context.Background(), models.NewEvent(models.EventOrderUpdated, "", nil)), ErrConnectionClosed)
}

func TestStaleCompletionKeepsReplacement(t *testing.T) {
	r, _ := newTestViewerRegistry(0)
	key := ViewerKey{SessionCode: "ABC123", MemberID: 3}

	first, err := r.Subscribe(key, &recordingSender{})
	require.NoError(t, err)
	second, err := r.Subscribe(key, &recordingSender{})
	require.NoError(t, err)

	first.Complete()

	got, ok := r.Get(key)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestGetAllGroupsBySession(t *testing.T) {
	r, _ := newTestViewerRegistry(0)

	for _, id := range []int64{1, 2, 3} {
		_, err := r.Subscribe(ViewerKey{SessionCode: "AAA111", MemberID: id}, &recordingSender{})
		require.NoError(t, err)
	}
	_, err := r.Subscribe(ViewerKey{SessionCode: "BBB222", MemberID: 1}, &recordingSender{})
	require.NoError(t, err)

	all := r.GetAll("AAA111")
	assert.Len(t, all, 3)
	for k := range all {
		assert.Equal(t, "AAA111", k.SessionCode)
	}

	assert.Equal(t, 3, r.UnsubscribeGroup("AAA111"))
	assert.Empty(t, r.GetAll("AAA111"))
	assert.Len(t, r.GetAll("BBB222"), 1)
}

func TestCompleteAllClosesEverythingAndRejectsNewSubscriptions(t *testing.T) {
	r, log := newTestViewerRegistry(0)

	failing := &recordingSender{closeErr: errors.New("close failed")}
	conns := make([]*Connection, 0, 4)
	for i, s := range []*recordingSender{{}, failing, {}, {}} {
		c, err := r.Subscribe(ViewerKey{SessionCode: "ABC123", MemberID: int64(i)}, s)
		require.NoError(t, err)
		conns = append(conns, c)
	}

	err := r.CompleteAll(context.Background())
	assert.Error(t, err)

	for _, c := range conns {
		assert.Equal(t, StateClosed, c.State())
		reason, _ := c.CloseReason()
		assert.Equal(t, ReasonShutdown, reason)
	}
	assert.Equal(t, 0, r.Len())
	assert.Len(t, log.snapshot(), 4)

	_, err = r.Subscribe(ViewerKey{SessionCode: "ABC123", MemberID: 99}, &recordingSender{})
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestMaxLifetimeTimesOut(t *testing.T) {
	r, log := newTestViewerRegistry(20 * time.Millisecond)
	key := ViewerKey{SessionCode: "ABC123", MemberID: 5}

	c, err := r.Subscribe(key, &recordingSender{})
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection did not time out")
	}

	reason, _ := c.CloseReason()
	assert.Equal(t, ReasonTimeout, reason)
	assert.True(t, reason.Dropped())

	_, ok := r.Get(key)
	assert.False(t, ok)

	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStreamerRegistryKeysByID(t *testing.T) {
	r := NewStreamerRegistry(Config{}, logger.InitializeTestZapLogger())

	c, err := r.Subscribe(77, &recordingSender{})
	require.NoError(t, err)

	got, ok := r.Get(77)
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Len(t, r.GetAll(StreamerGroup(77)), 1)
}

type seqUUID struct {
	mu sync.Mutex
	n  int
}

func (s *seqUUID) NewUUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "conn-" + strconv.Itoa(s.n)
}

func (s *seqUUID) NewSessionCode() string {
	return "CODE00"
}

func TestConnectionIDsComeFromGenerator(t *testing.T) {
	r := NewViewerRegistry(Config{UUID: &seqUUID{}}, logger.InitializeTestZapLogger())

	first, err := r.Subscribe(ViewerKey{SessionCode: "ABC123", MemberID: 1}, &recordingSender{})
	require.NoError(t, err)
	second, err := r.Subscribe(ViewerKey{SessionCode: "ABC123", MemberID: 2}, &recordingSender{})
	require.NoError(t, err)

	assert.Equal(t, "conn-1", first.ID)
	assert.Equal(t, "conn-2", second.ID)
}
