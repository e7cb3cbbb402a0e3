package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

var ErrSenderClosed = errors.New("stream sender closed")

// StreamSender buffers events for a transport pump (SSE or WebSocket) that
// drains Events until Closed fires.
type StreamSender struct {
	events chan models.Event
	closed chan struct{}
	once   sync.Once
}

func NewStreamSender(buffer int) *StreamSender {
	if buffer <= 0 {
		buffer = 1
	}
	return &StreamSender{
		events: make(chan models.Event, buffer),
		closed: make(chan struct{}),
	}
}

// Send queues ev, waiting for buffer space until ctx is done.
func (s *StreamSender) Send(ctx context.Context, ev models.Event) error {
	select {
	case <-s.closed:
		return ErrSenderClosed
	default:
	}

	select {
	case s.events <- ev:
		return nil
	case <-s.closed:
		return ErrSenderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StreamSender) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *StreamSender) Events() <-chan models.Event {
	return s.events
}

func (s *StreamSender) Closed() <-chan struct{} {
	return s.closed
}

// Drain returns the events still buffered once the sender is closed, so a
// pump can flush a final frame such as CONNECTION_REPLACED.
func (s *StreamSender) Drain() []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
