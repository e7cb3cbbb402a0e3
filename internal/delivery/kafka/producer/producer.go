package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	kafka "github.com/vogiaan1904/ticketbottle-lineup/internal/delivery/kafka"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

type Producer interface {
	PublishParticipantJoined(ctx context.Context, event kafka.ParticipantJoinedEvent) error
	PublishParticipantLeft(ctx context.Context, event kafka.ParticipantLeftEvent) error
	PublishSessionClosed(ctx context.Context, event kafka.SessionClosedEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishParticipantJoined(ctx context.Context, event kafka.ParticipantJoinedEvent) error {
	event.Timestamp = time.Now()
	if err := p.publish(ctx, kafka.TopicParticipantJoined, event.StreamerID, event); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishParticipantJoined: %v", err)
		return err
	}
	return nil
}

func (p *implProducer) PublishParticipantLeft(ctx context.Context, event kafka.ParticipantLeftEvent) error {
	event.Timestamp = time.Now()
	if err := p.publish(ctx, kafka.TopicParticipantLeft, event.StreamerID, event); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishParticipantLeft: %v", err)
		return err
	}
	return nil
}

func (p *implProducer) PublishSessionClosed(ctx context.Context, event kafka.SessionClosedEvent) error {
	event.Timestamp = time.Now()
	if err := p.publish(ctx, kafka.TopicSessionClosed, event.StreamerID, event); err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishSessionClosed: %v", err)
		return err
	}
	return nil
}

func (p *implProducer) publish(ctx context.Context, topic string, streamerID int64, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(streamerID, 10)), // Partition by streamer for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}

	return nil
}

type noopProducer struct{}

// NewNoopProducer is used when Kafka is disabled.
func NewNoopProducer() Producer {
	return noopProducer{}
}

func (noopProducer) PublishParticipantJoined(context.Context, kafka.ParticipantJoinedEvent) error {
	return nil
}

func (noopProducer) PublishParticipantLeft(context.Context, kafka.ParticipantLeftEvent) error {
	return nil
}

func (noopProducer) PublishSessionClosed(context.Context, kafka.SessionClosedEvent) error {
	return nil
}

func (noopProducer) Close() error { return nil }
