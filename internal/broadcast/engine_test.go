package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/queue"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeSender struct {
	mu     sync.Mutex
	fail   bool
	events []models.Event
}

func (s *fakeSender) Send(ctx context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBrokenPipe
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSender) Close() error { return nil }

func (s *fakeSender) received() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

type fixture struct {
	store     queue.Store
	viewers   connection.Registry[connection.ViewerKey]
	streamers connection.Registry[int64]
	engine    Engine
	session   *models.Session
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	l := logger.InitializeTestZapLogger()
	f := &fixture{
		store:     queue.NewStore(),
		viewers:   connection.NewViewerRegistry(connection.Config{}, l),
		streamers: connection.NewStreamerRegistry(connection.Config{}, l),
		session: &models.Session{
			Code:                  "ABC123",
			StreamerID:            1,
			Status:                models.SessionStatusOpen,
			MaxGroupSize:          2,
			GameParticipationCode: "LOBBY-9",
		},
	}
	f.engine = NewEngine(Config{Workers: workers, SendTimeout: time.Second}, f.store, f.viewers, f.streamers, l)
	return f
}

func (f *fixture) join(t *testing.T, viewerID int64, sender connection.Sender) *connection.Connection {
	t.Helper()
	f.store.Add(f.session.Code, models.ParticipantOrder{
		Status:        models.ParticipantStatusPending,
		ParticipantID: viewerID,
		ViewerID:      viewerID,
	})
	c, err := f.viewers.Subscribe(connection.ViewerKey{SessionCode: f.session.Code, MemberID: viewerID}, sender)
	require.NoError(t, err)
	return c
}

func TestBroadcastIsolatesFailingConnection(t *testing.T) {
	f := newFixture(t, 2)

	senders := map[int64]*fakeSender{}
	conns := map[int64]*connection.Connection{}
	for id := int64(1); id <= 5; id++ {
		s := &fakeSender{fail: id == 3}
		senders[id] = s
		conns[id] = f.join(t, id, s)
	}

	res := f.engine.BroadcastOrderedSnapshot(context.Background(), f.session, models.EventOrderUpdated)

	assert.Equal(t, Result{Delivered: 4, Failed: 1}, res)
	for id, s := range senders {
		if id == 3 {
			assert.Empty(t, s.received())
			assert.Equal(t, connection.StateClosed, conns[id].State())
			continue
		}
		require.Len(t, s.received(), 1, "viewer %d", id)
		assert.Equal(t, connection.StateOpen, conns[id].State())
	}

	// Transport failure never touches participation.
	assert.Equal(t, 5, f.store.Len(f.session.Code))
	_, ok := f.viewers.Get(connection.ViewerKey{SessionCode: f.session.Code, MemberID: 3})
	assert.False(t, ok)
}

func TestBroadcastRevealsCodeOnlyInsideGroup(t *testing.T) {
	f := newFixture(t, 4)

	senders := map[int64]*fakeSender{}
	for id := int64(1); id <= 4; id++ {
		senders[id] = &fakeSender{}
		f.join(t, id, senders[id])
	}

	f.engine.BroadcastOrderedSnapshot(context.Background(), f.session, models.EventOrderUpdated)

	for id, s := range senders {
		events := s.received()
		require.Len(t, events, 1)
		payload, ok := events[0].Data.(models.OrderPayload)
		require.True(t, ok)

		assert.Equal(t, int(id), payload.Order)
		if payload.Order <= f.session.MaxGroupSize {
			assert.True(t, payload.IsReadyToPlay)
			assert.Equal(t, "LOBBY-9", payload.GameParticipationCode)
		} else {
			assert.False(t, payload.IsReadyToPlay)
			assert.Empty(t, payload.GameParticipationCode)
		}
	}
}

func TestBroadcastSkipsParticipantsWithoutConnection(t *testing.T) {
	f := newFixture(t, 4)

	s := &fakeSender{}
	f.join(t, 1, s)
	f.store.Add(f.session.Code, models.ParticipantOrder{Status: models.ParticipantStatusPending, ParticipantID: 2, ViewerID: 2})

	res := f.engine.BroadcastOrderedSnapshot(context.Background(), f.session, models.EventOrderUpdated)
	assert.Equal(t, Result{Delivered: 1}, res)
}

func TestBroadcastSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t, 1)

	senders := []*fakeSender{{}, {}, {}}
	for i, s := range senders {
		f.join(t, int64(i+1), s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.engine.BroadcastOrderedSnapshot(ctx, f.session, models.EventOrderUpdated)
	assert.Equal(t, 3, res.Delivered)
}

func TestSendToOneAndStreamer(t *testing.T) {
	f := newFixture(t, 2)

	viewer := &fakeSender{}
	f.join(t, 10, viewer)
	streamer := &fakeSender{}
	_, err := f.streamers.Subscribe(f.session.StreamerID, streamer)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, f.engine.SendToOne(ctx, f.session.Code, 10, models.NewEvent(models.EventConnected, "", nil)))
	assert.False(t, f.engine.SendToOne(ctx, f.session.Code, 11, models.NewEvent(models.EventConnected, "", nil)))
	assert.True(t, f.engine.SendToStreamer(ctx, f.session.StreamerID, models.NewEvent(models.EventParticipantJoined, "", nil)))
	assert.False(t, f.engine.SendToStreamer(ctx, 999, models.NewEvent(models.EventParticipantJoined, "", nil)))

	assert.Len(t, viewer.received(), 1)
	assert.Len(t, streamer.received(), 1)
}

func TestSendToSessionReachesEveryViewer(t *testing.T) {
	f := newFixture(t, 2)

	senders := []*fakeSender{{}, {}, {fail: true}}
	for i, s := range senders {
		f.join(t, int64(i+1), s)
	}

	res := f.engine.SendToSession(context.Background(), f.session.Code, models.NewEvent(models.EventSessionClosed, "closed", nil))
	assert.Equal(t, Result{Delivered: 2, Failed: 1}, res)
}
