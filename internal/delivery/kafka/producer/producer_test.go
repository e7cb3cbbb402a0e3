package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafka "github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

func TestPublishParticipantJoined(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, kafka.TopicParticipantJoined, msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "7", string(key))

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var ev kafka.ParticipantJoinedEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, "ABC123", ev.SessionCode)
		assert.Equal(t, int64(42), ev.ViewerID)
		assert.False(t, ev.Timestamp.IsZero())
		return nil
	})

	p := NewProducer(mp, logger.InitializeTestZapLogger())
	err := p.PublishParticipantJoined(context.Background(), kafka.ParticipantJoinedEvent{
		SessionCode:   "ABC123",
		StreamerID:    7,
		ViewerID:      42,
		ParticipantID: 1,
		Nickname:      "mina",
		JoinedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishReturnsBrokerError(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(errors.New("broker down"))

	p := NewProducer(mp, logger.InitializeTestZapLogger())
	err := p.PublishSessionClosed(context.Background(), kafka.SessionClosedEvent{SessionCode: "ABC123", StreamerID: 7})
	assert.Error(t, err)
	require.NoError(t, p.Close())
}

func TestPublishParticipantLeftTopic(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicParticipantLeft {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	})

	p := NewProducer(mp, logger.InitializeTestZapLogger())
	require.NoError(t, p.PublishParticipantLeft(context.Background(), kafka.ParticipantLeftEvent{
		SessionCode: "ABC123",
		StreamerID:  7,
		ViewerID:    42,
		Reason:      kafka.LeftReasonKicked,
	}))
	require.NoError(t, p.Close())
}
