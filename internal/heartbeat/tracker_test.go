package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/clock"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(clk clock.Clock, interval, timeout time.Duration) Tracker {
	return NewTracker(Config{Interval: interval, Timeout: timeout}, clk, logger.InitializeTestZapLogger())
}

func TestSweepExpiresWithinOneIntervalOfTimeout(t *testing.T) {
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	start := clk.Now()
	tr := newTestTracker(clk, 5*time.Second, 15*time.Second)

	fired := make(chan time.Duration, 4)
	tr.SetExpiryHandler(func(ctx context.Context, key Key) {
		assert.Equal(t, Key{MemberID: 42, SessionCode: "ABC123"}, key)
		fired <- clk.Now().Sub(start)
	})

	tr.Touch(42, "ABC123")

	var elapsed time.Duration
	for tick := 1; tick <= 4; tick++ {
		clk.Advance(5 * time.Second)
		if expired := tr.Sweep(context.Background()); len(expired) > 0 {
			elapsed = <-fired
			break
		}
	}

	assert.GreaterOrEqual(t, elapsed, 15*time.Second)
	assert.Less(t, elapsed, 20*time.Second)

	_, ok := tr.LastSeen(42, "ABC123")
	assert.False(t, ok)

	clk.Advance(5 * time.Second)
	assert.Empty(t, tr.Sweep(context.Background()))
	assert.Empty(t, fired)
}

func TestTouchRefreshesEntry(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	tr := newTestTracker(clk, 5*time.Second, 15*time.Second)

	tr.Touch(1, "S1")
	clk.Advance(10 * time.Second)
	tr.Touch(1, "S1")
	clk.Advance(10 * time.Second)

	assert.Empty(t, tr.Sweep(context.Background()))

	clk.Advance(5 * time.Second)
	assert.Equal(t, []Key{{MemberID: 1, SessionCode: "S1"}}, tr.Sweep(context.Background()))
}

func TestForgetRemovesEntry(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	tr := newTestTracker(clk, time.Second, 2*time.Second)

	tr.Touch(7, "S1")
	assert.True(t, tr.Forget(7, "S1"))
	assert.False(t, tr.Forget(7, "S1"))

	clk.Advance(time.Minute)
	assert.Empty(t, tr.Sweep(context.Background()))
}

func TestSlowHandlerDoesNotStallSweeps(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	tr := newTestTracker(clk, time.Second, 2*time.Second)

	release := make(chan struct{})
	var handled sync.WaitGroup
	handled.Add(2)
	tr.SetExpiryHandler(func(ctx context.Context, key Key) {
		<-release
		handled.Done()
	})

	tr.Touch(1, "S1")
	clk.Advance(3 * time.Second)
	require.Len(t, tr.Sweep(context.Background()), 1)

	tr.Touch(2, "S1")
	clk.Advance(3 * time.Second)

	swept := make(chan []Key, 1)
	go func() { swept <- tr.Sweep(context.Background()) }()

	select {
	case keys := <-swept:
		assert.Len(t, keys, 1)
	case <-time.After(time.Second):
		t.Fatal("sweep blocked behind a slow expiry handler")
	}

	close(release)
	handled.Wait()
}

func TestStartStopLoop(t *testing.T) {
	tr := newTestTracker(&clock.DefaultClock{}, 10*time.Millisecond, 30*time.Millisecond)

	expired := make(chan Key, 1)
	tr.SetExpiryHandler(func(ctx context.Context, key Key) {
		expired <- key
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, tr.Start(ctx))
	require.ErrorIs(t, tr.Start(ctx), ErrAlreadyRunning)

	tr.Touch(9, "LOOP01")

	select {
	case key := <-expired:
		assert.Equal(t, int64(9), key.MemberID)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}

	require.NoError(t, tr.Stop())
	require.ErrorIs(t, tr.Stop(), ErrNotRunning)
}
