package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusNotContacted OrderStatus = "not_contacted"
	OrderStatusContacted    OrderStatus = "contacted"
)

func (s OrderStatus) Valid() bool {
	return s == OrderStatusNotContacted || s == OrderStatusContacted
}

const DefaultPaymentMethod = "cod"

type Customer struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	District string `json:"district,omitempty"`
	Ward     string `json:"ward,omitempty"`
}

type OrderItem struct {
	ProductRef        string `json:"product_id"`
	ProductName       string `json:"product_name"`
	Quantity          int    `json:"quantity"`
	UnitPriceSnapshot int64  `json:"unit_price"`
}

type Order struct {
	ID            uuid.UUID   `json:"id"`
	OrderNumber   string      `json:"order_number"`
	Customer      Customer    `json:"customer"`
	Items         []OrderItem `json:"items"`
	Status        OrderStatus `json:"status"`
	Notes         string      `json:"notes,omitempty"`
	PaymentMethod string      `json:"payment_method"`
	SessionKey    string      `json:"-"`
	OrderDate     time.Time   `json:"order_date"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (o *Order) TotalAmount() int64 {
	var total int64
	for _, it := range o.Items {
		total += int64(it.Quantity) * it.UnitPriceSnapshot
	}
	return total
}

func (o *Order) TotalItems() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// OrderFilter narrows the admin order listing. Zero values mean "any".
type OrderFilter struct {
	Status OrderStatus
	Phone  string
	Search string
	From   time.Time
	To     time.Time
	Page   int
	Limit  int
}

// OrderUpdate carries the fields an administrator may change.
type OrderUpdate struct {
	Status *OrderStatus
	Notes  *string
}
