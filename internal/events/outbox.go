package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/juju/clock"
)

const (
	DefaultRelayInterval       = time.Second
	DefaultRelayBatchSize      = 100
	DefaultRelayPublishTimeout = 5 * time.Second
)

// EventWriter delivers one encoded event to the broker.
type EventWriter interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// RelayConfig holds all necessary attributes to start a Relay.
type RelayConfig struct {
	Store          repository.OutboxStore
	Writer         EventWriter
	Clock          clock.Clock
	Interval       time.Duration
	BatchSize      int
	PublishTimeout time.Duration
	Logger         *slog.Logger
	// Metrics is optional.
	Metrics *metrics.Registry
}

// Validate will err unless basic requirements for a valid config are met.
func (c RelayConfig) Validate() error {
	if c.Store == nil {
		return errors.New("missing Store")
	}
	if c.Writer == nil {
		return errors.New("missing Writer")
	}
	if c.Clock == nil {
		return errors.New("missing Clock")
	}
	if c.Logger == nil {
		return errors.New("missing Logger")
	}
	if c.Interval <= 0 {
		return errors.New("Interval must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("BatchSize must be positive")
	}
	if c.PublishTimeout <= 0 {
		return errors.New("PublishTimeout must be positive")
	}
	return nil
}

// Relay moves order_outbox rows to Kafka. Delivery is at least once: a row
// published but not marked is sent again on the next pass.
type Relay struct {
	cfg RelayConfig
}

func NewRelay(cfg RelayConfig) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Relay{cfg: cfg}, nil
}

// Run drains the outbox every Interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	timer := r.cfg.Clock.NewTimer(r.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			_, _ = r.RelayOnce(ctx)
			timer.Reset(r.cfg.Interval)
		}
	}
}

// RelayOnce publishes one batch of pending events in outbox order and
// reports how many were delivered. The batch stops at the first failed
// publish so a dead broker costs one PublishTimeout per pass.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.cfg.Store.GetUnprocessedEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		r.cfg.Logger.Error("failed to fetch outbox events", "error", err)
		return 0, err
	}

	published := 0
	for _, event := range pending {
		if err := r.publish(ctx, event); err != nil {
			r.cfg.Logger.Error("failed to publish outbox event",
				"event_id", event.ID, "aggregate_id", event.AggregateID, "error", err)
			r.observe("error")
			return published, err
		}
		r.observe("ok")
		published++

		if err := r.cfg.Store.MarkEventAsProcessed(ctx, event.ID, r.cfg.Clock.Now()); err != nil {
			r.cfg.Logger.Error("failed to mark outbox event as processed", "event_id", event.ID, "error", err)
		}
	}
	return published, nil
}

func (r *Relay) publish(ctx context.Context, event *repository.OutboxEvent) error {
	publishCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()
	return r.cfg.Writer.Publish(publishCtx, event.AggregateID, event.EventType, event.Payload)
}

func (r *Relay) observe(result string) {
	if r.cfg.Metrics == nil {
		return
	}
	r.cfg.Metrics.OrderEventsPublished.WithLabelValues(result).Inc()
}
