package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOrderPlaced_RoundTripConvertsCart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokerAddr, cleanupKafka := setupKafka(t)
	defer cleanupKafka()
	createTopic(t, brokerAddr, OrdersTopic)

	pub := NewPublisher(OrdersTopic, brokerAddr)
	defer pub.Close()
	payload, err := MarshalOrderPlaced(placedOrder())
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "ORD-20260301-0042", EventTypeOrderPlaced, payload))

	carts := &mockConverter{carts: []*domain.Cart{{ID: "c1", SessionKey: "T1", Fingerprint: "fp"}}}
	cache := &mockInvalidator{}
	c := NewConsumer(carts, cache, logger.Discard(), OrdersTopic, brokerAddr)
	defer c.Close()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		carts.mu.Lock()
		defer carts.mu.Unlock()
		return len(carts.sessions) == 1 && carts.sessions[0] == "T1"
	}, 20*time.Second, 500*time.Millisecond)
}
