// Package events carries order lifecycle events over Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

const (
	OrdersTopic          = "orders-placed"
	CartConversionGroup  = "cart-conversion"
	EventTypeOrderPlaced = "order_placed"
	eventTypeHeader      = "event_type"
)

// OrderPlaced is published once an order has been persisted.
type OrderPlaced struct {
	OrderNumber string    `json:"order_number"`
	SessionKey  string    `json:"session_key"`
	TotalAmount int64     `json:"total_amount"`
	TotalItems  int       `json:"total_items"`
	PlacedAt    time.Time `json:"placed_at"`
}

func NewOrderPlaced(order *domain.Order) OrderPlaced {
	return OrderPlaced{
		OrderNumber: order.OrderNumber,
		SessionKey:  order.SessionKey,
		TotalAmount: order.TotalAmount(),
		TotalItems:  order.TotalItems(),
		PlacedAt:    order.OrderDate,
	}
}

// MarshalOrderPlaced encodes the order_placed payload for the outbox.
func MarshalOrderPlaced(order *domain.Order) ([]byte, error) {
	payload, err := json.Marshal(NewOrderPlaced(order))
	if err != nil {
		return nil, fmt.Errorf("marshal order placed event: %w", err)
	}
	return payload, nil
}
