package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrRegistryClosed   = errors.New("connection registry is not accepting subscriptions")
)

type State int32

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

type CloseReason string

const (
	// ReasonReplaced: a newer subscription took over the key.
	ReasonReplaced CloseReason = "replaced"
	// ReasonUnsubscribed: the server removed the connection on purpose (leave, kick, close).
	ReasonUnsubscribed CloseReason = "unsubscribed"
	// ReasonCompleted: the client went away.
	ReasonCompleted CloseReason = "completed"
	// ReasonTimeout: the connection reached its maximum lifetime.
	ReasonTimeout CloseReason = "timeout"
	// ReasonError: a send or the transport failed.
	ReasonError CloseReason = "error"
	// ReasonShutdown: the process is stopping.
	ReasonShutdown CloseReason = "shutdown"
)

// Dropped reports whether the close came from the transport rather than
// from a deliberate server-side action.
func (r CloseReason) Dropped() bool {
	return r == ReasonCompleted || r == ReasonTimeout || r == ReasonError
}

// Sender is the transport handle behind a connection.
type Sender interface {
	Send(ctx context.Context, ev models.Event) error
	Close() error
}

type closeFunc func(c *Connection, reason CloseReason, err error)

type Connection struct {
	ID        string
	CreatedAt time.Time

	sender  Sender
	state   atomic.Int32
	once    sync.Once
	done    chan struct{}
	onClose closeFunc
	timer   *time.Timer

	mu       sync.Mutex
	reason   CloseReason
	closeErr error
}

func newConnection(id string, sender Sender, createdAt time.Time, onClose closeFunc) *Connection {
	return &Connection{
		ID:        id,
		CreatedAt: createdAt,
		sender:    sender,
		done:      make(chan struct{}),
		onClose:   onClose,
	}
}

func (c *Connection) startTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "" {
		return
	}
	c.timer = time.AfterFunc(d, func() {
		c.complete(ReasonTimeout, nil)
	})
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) IsOpen() bool {
	return c.State() == StateOpen
}

// Done is closed once the connection has been completed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// CloseReason returns why the connection completed; empty while open.
func (c *Connection) CloseReason() (CloseReason, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason, c.closeErr
}

func (c *Connection) Send(ctx context.Context, ev models.Event) error {
	if !c.IsOpen() {
		return ErrConnectionClosed
	}
	return c.sender.Send(ctx, ev)
}

// Close removes this connection on purpose. A newer connection registered
// under the same key is left alone.
func (c *Connection) Close() {
	c.complete(ReasonUnsubscribed, nil)
}

// Complete closes the connection because the client went away.
func (c *Connection) Complete() {
	c.complete(ReasonCompleted, nil)
}

// Fail closes the connection after a transport or send error.
func (c *Connection) Fail(err error) {
	c.complete(ReasonError, err)
}

// complete runs the single cleanup path. Whichever terminal event arrives
// first wins; later calls are no-ops.
func (c *Connection) complete(reason CloseReason, err error) {
	c.once.Do(func() {
		if reason == ReasonReplaced {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			_ = c.sender.Send(ctx, models.NewEvent(models.EventConnectionReplaced, "connection replaced by a newer subscription", nil))
			cancel()
		}

		c.mu.Lock()
		c.reason = reason
		c.closeErr = err
		if c.timer != nil {
			c.timer.Stop()
		}
		c.mu.Unlock()

		c.state.Store(int32(StateClosed))
		if cerr := c.sender.Close(); cerr != nil && err == nil {
			c.mu.Lock()
			c.closeErr = cerr
			c.mu.Unlock()
		}
		close(c.done)

		if c.onClose != nil {
			c.onClose(c, reason, err)
		}
	})
}
