package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/connection"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/queue"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Result counts the outcome of one fan-out call.
type Result struct {
	Delivered int
	Failed    int
}

// Engine pushes events to open connections. Every method is best effort:
// a failed send closes that one connection and is never returned.
type Engine interface {
	SendToOne(ctx context.Context, sessionCode string, memberID int64, ev models.Event) bool
	SendToStreamer(ctx context.Context, streamerID int64, ev models.Event) bool
	// SendToSession sends the same event to every viewer connected to the session.
	SendToSession(ctx context.Context, sessionCode string, ev models.Event) Result
	// BroadcastOrderedSnapshot sends each connected participant their own
	// place in the current order and returns once every send has finished.
	BroadcastOrderedSnapshot(ctx context.Context, session *models.Session, eventType models.EventType) Result
}

type Config struct {
	Workers     int
	SendTimeout time.Duration
}

type engine struct {
	store     queue.Store
	viewers   connection.Registry[connection.ViewerKey]
	streamers connection.Registry[int64]
	pool      *semaphore.Weighted
	timeout   time.Duration
	l         logger.Logger
}

func NewEngine(
	cfg Config,
	store queue.Store,
	viewers connection.Registry[connection.ViewerKey],
	streamers connection.Registry[int64],
	l logger.Logger,
) Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Second
	}
	return &engine{
		store:     store,
		viewers:   viewers,
		streamers: streamers,
		pool:      semaphore.NewWeighted(int64(cfg.Workers)),
		timeout:   cfg.SendTimeout,
		l:         l,
	}
}

func (e *engine) SendToOne(ctx context.Context, sessionCode string, memberID int64, ev models.Event) bool {
	c, ok := e.viewers.Get(connection.ViewerKey{SessionCode: sessionCode, MemberID: memberID})
	if !ok {
		return false
	}
	return e.deliver(context.WithoutCancel(ctx), c, ev)
}

func (e *engine) SendToStreamer(ctx context.Context, streamerID int64, ev models.Event) bool {
	c, ok := e.streamers.Get(streamerID)
	if !ok {
		return false
	}
	return e.deliver(context.WithoutCancel(ctx), c, ev)
}

func (e *engine) SendToSession(ctx context.Context, sessionCode string, ev models.Event) Result {
	conns := e.viewers.GetAll(sessionCode)
	jobs := make([]job, 0, len(conns))
	for _, c := range conns {
		jobs = append(jobs, job{conn: c, ev: ev})
	}
	return e.fanOut(ctx, jobs)
}

func (e *engine) BroadcastOrderedSnapshot(ctx context.Context, session *models.Session, eventType models.EventType) Result {
	conns := e.viewers.GetAll(session.Code)
	if len(conns) == 0 {
		return Result{}
	}

	byMember := make(map[int64]*connection.Connection, len(conns))
	for k, c := range conns {
		byMember[k.MemberID] = c
	}

	snapshot := e.store.SortedSnapshot(session.Code)
	jobs := make([]job, 0, len(snapshot))
	for i, o := range snapshot {
		c, ok := byMember[o.ViewerID]
		if !ok || !c.IsOpen() {
			continue
		}
		payload := models.NewOrderPayload(i+1, o, session)
		jobs = append(jobs, job{conn: c, ev: models.NewEvent(eventType, "", payload)})
	}

	return e.fanOut(ctx, jobs)
}

type job struct {
	conn *connection.Connection
	ev   models.Event
}

// fanOut runs every job on the shared worker pool and waits for all of them.
// The caller's cancellation does not cut a broadcast short.
func (e *engine) fanOut(ctx context.Context, jobs []job) Result {
	ctx = context.WithoutCancel(ctx)

	var (
		g         errgroup.Group
		delivered atomic.Int64
		failed    atomic.Int64
	)
	for _, j := range jobs {
		if err := e.pool.Acquire(ctx, 1); err != nil {
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			defer e.pool.Release(1)
			if e.deliver(ctx, j.conn, j.ev) {
				delivered.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}

func (e *engine) deliver(ctx context.Context, c *connection.Connection, ev models.Event) bool {
	sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := c.Send(sendCtx, ev)
	if err == nil {
		return true
	}
	if errors.Is(err, connection.ErrConnectionClosed) {
		return false
	}

	e.l.Warnf(ctx, "broadcast.engine.deliver: connection %s failed on %s: %v", c.ID, ev.Type, err)
	c.Fail(err)
	return false
}
