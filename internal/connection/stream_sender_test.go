package connection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/models"
)

func TestStreamSenderDeliversUntilClosed(t *testing.T) {
	s := NewStreamSender(2)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, models.NewEvent(models.EventConnected, "hi", nil)))
	ev := <-s.Events()
	assert.Equal(t, models.EventConnected, ev.Type)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(ctx, models.NewEvent(models.EventOrderUpdated, "", nil)), ErrSenderClosed)
}

func TestStreamSenderFullBufferHonoursContext(t *testing.T) {
	s := NewStreamSender(1)
	require.NoError(t, s.Send(context.Background(), models.NewEvent(models.EventOrderUpdated, "", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, models.NewEvent(models.EventOrderUpdated, "", nil)), context.DeadlineExceeded)

	require.NoError(t, s.Close())
	assert.Len(t, s.Drain(), 1)
}
