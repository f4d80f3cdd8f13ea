package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// writerBatchTimeout keeps kafka-go from holding a lone message for its
	// default one second batch window.
	writerBatchTimeout = 10 * time.Millisecond
	writerWriteTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(topic string, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           writerBatchTimeout,
		WriteTimeout:           writerWriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w}
}

// Publish writes one already encoded event. key selects the partition so
// events for the same order stay ordered.
func (p *Publisher) Publish(ctx context.Context, key, eventType string, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s %s: %w", eventType, key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
