package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartConverter is the part of the cart store the consumer needs.
type CartConverter interface {
	MarkConvertedBySession(ctx context.Context, sessionKey string, now time.Time) ([]*domain.Cart, error)
}

type CartInvalidator interface {
	Delete(ctx context.Context, sessionKey, fingerprint string) error
}

// Consumer marks a session's carts converted when one of its orders is
// placed.
type Consumer struct {
	carts        CartConverter
	cache        CartInvalidator
	reader       messageReader
	logger       *slog.Logger
	now          func() time.Time
	retryBackoff time.Duration
}

func NewConsumer(carts CartConverter, cache CartInvalidator, logger *slog.Logger, topic string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  CartConversionGroup,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(carts, cache, reader, logger)
}

func newConsumer(carts CartConverter, cache CartInvalidator, reader messageReader, logger *slog.Logger) *Consumer {
	return &Consumer{
		carts:        carts,
		cache:        cache,
		reader:       reader,
		logger:       logger,
		now:          time.Now,
		retryBackoff: time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("error closing kafka reader", "error", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		c.logger.Error("error reading message", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(c.retryBackoff):
		}
		return
	}

	if err := c.handleMessage(ctx, m); err != nil {
		c.logger.Error("failed to handle order event",
			"offset", m.Offset, "key", string(m.Key), "error", err)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, m kafka.Message) error {
	for _, h := range m.Headers {
		if h.Key == eventTypeHeader && string(h.Value) != EventTypeOrderPlaced {
			return nil
		}
	}

	var event OrderPlaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("parse order event: %w", err)
	}
	if event.SessionKey == "" {
		// Orders placed without a session have no cart to convert.
		return nil
	}

	carts, err := c.carts.MarkConvertedBySession(ctx, event.SessionKey, c.now())
	if err != nil {
		return fmt.Errorf("convert carts for order %s: %w", event.OrderNumber, err)
	}

	for _, cart := range carts {
		if err := c.cache.Delete(ctx, cart.SessionKey, cart.Fingerprint); err != nil {
			c.logger.Warn("failed to invalidate cached cart",
				"cart_id", cart.ID, "error", err)
		}
	}

	c.logger.Info("carts converted",
		"order_number", event.OrderNumber, "carts", len(carts))
	return nil
}
