package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/clock"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

var (
	ErrAlreadyRunning = errors.New("heartbeat tracker is already running")
	ErrNotRunning     = errors.New("heartbeat tracker is not running")
)

type Key struct {
	MemberID    int64
	SessionCode string
}

// ExpiryHandler is called once per expired entry, outside the tracker lock.
type ExpiryHandler func(ctx context.Context, key Key)

type Tracker interface {
	Touch(memberID int64, sessionCode string)
	Forget(memberID int64, sessionCode string) bool
	LastSeen(memberID int64, sessionCode string) (time.Time, bool)
	SetExpiryHandler(h ExpiryHandler)

	// Sweep removes every entry older than the timeout, hands them to the
	// expiry handler asynchronously and returns the removed keys.
	Sweep(ctx context.Context) []Key

	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	Interval        time.Duration
	Timeout         time.Duration
	ShutdownTimeout time.Duration
}

type tracker struct {
	cfg   Config
	clock clock.Clock
	l     logger.Logger

	mu       sync.Mutex
	lastSeen map[Key]time.Time

	handlerMu sync.RWMutex
	handler   ExpiryHandler

	runMu     sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	loopWg    sync.WaitGroup
	dispatch  sync.WaitGroup
}

func NewTracker(cfg Config, clk clock.Clock, l logger.Logger) Tracker {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	return &tracker{
		cfg:      cfg,
		clock:    clk,
		l:        l,
		lastSeen: make(map[Key]time.Time),
	}
}

func (t *tracker) Touch(memberID int64, sessionCode string) {
	now := t.clock.Now()

	t.mu.Lock()
	t.lastSeen[Key{MemberID: memberID, SessionCode: sessionCode}] = now
	t.mu.Unlock()
}

func (t *tracker) Forget(memberID int64, sessionCode string) bool {
	key := Key{MemberID: memberID, SessionCode: sessionCode}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.lastSeen[key]; !ok {
		return false
	}
	delete(t.lastSeen, key)
	return true
}

func (t *tracker) LastSeen(memberID int64, sessionCode string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.lastSeen[Key{MemberID: memberID, SessionCode: sessionCode}]
	return ts, ok
}

func (t *tracker) SetExpiryHandler(h ExpiryHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

func (t *tracker) Sweep(ctx context.Context) []Key {
	now := t.clock.Now()

	var expired []Key
	t.mu.Lock()
	for key, seen := range t.lastSeen {
		if now.Sub(seen) >= t.cfg.Timeout {
			expired = append(expired, key)
			delete(t.lastSeen, key)
		}
	}
	t.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	t.l.Debugf(ctx, "heartbeat.tracker.Sweep: %d member(s) expired", len(expired))

	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()
	if h == nil {
		return expired
	}

	batch := append([]Key(nil), expired...)
	t.dispatch.Add(1)
	go func() {
		defer t.dispatch.Done()
		for _, key := range batch {
			t.safeHandle(ctx, h, key)
		}
	}()

	return expired
}

func (t *tracker) safeHandle(ctx context.Context, h ExpiryHandler, key Key) {
	defer func() {
		if r := recover(); r != nil {
			t.l.Errorf(ctx, "heartbeat.tracker.dispatch: handler panicked for member %d in %s: %v",
				key.MemberID, key.SessionCode, r)
		}
	}()
	h(ctx, key)
}

func (t *tracker) Start(ctx context.Context) error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.isRunning {
		return ErrAlreadyRunning
	}

	t.l.Infof(ctx, "Starting heartbeat tracker (interval=%s, timeout=%s)", t.cfg.Interval, t.cfg.Timeout)

	t.isRunning = true
	t.stopCh = make(chan struct{})
	ticker := time.NewTicker(t.cfg.Interval)

	t.loopWg.Add(1)
	go t.sweepLoop(ctx, ticker, t.stopCh)

	return nil
}

func (t *tracker) sweepLoop(ctx context.Context, ticker *time.Ticker, stopCh <-chan struct{}) {
	defer t.loopWg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.l.Info(ctx, "Heartbeat tracker stopped due to context cancellation")
			return
		case <-stopCh:
			t.l.Info(ctx, "Heartbeat tracker stopped due to stop signal")
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

func (t *tracker) Stop() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if !t.isRunning {
		return ErrNotRunning
	}

	close(t.stopCh)

	done := make(chan struct{})
	go func() {
		t.loopWg.Wait()
		t.dispatch.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(t.cfg.ShutdownTimeout):
		t.l.Warn(context.Background(), "Heartbeat tracker shutdown timeout exceeded")
	}

	t.isRunning = false
	return nil
}
