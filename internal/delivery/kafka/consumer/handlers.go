package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/internal/service"
)

func (c *Consumer) HandleStreamLiveEnded(ctx context.Context, message *sarama.ConsumerMessage) error {
	var e kafka.StreamLiveEndedEvent
	if err := json.Unmarshal(message.Value, &e); err != nil {
		// A payload that never parses would block the partition forever.
		c.l.Errorf(ctx, "delivery.kafka.consumer.HandleStreamLiveEnded: dropping malformed message: %v", err)
		return nil
	}

	if err := c.svc.CloseByStreamer(ctx, e.StreamerID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.l.Debugf(ctx, "delivery.kafka.consumer.HandleStreamLiveEnded: streamer %d has no open session", e.StreamerID)
			return nil
		}
		c.l.Errorf(ctx, "delivery.kafka.consumer.HandleStreamLiveEnded: %v", err)
		return err
	}

	c.l.Infof(ctx, "Closed session of streamer %d after stream ended", e.StreamerID)

	return nil
}
