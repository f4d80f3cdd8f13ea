package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/ordernumber"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
)

const DefaultNotifyTimeout = 10 * time.Second

type OrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	Customer      domain.Customer  `json:"customer"`
	Items         []OrderItemInput `json:"items"`
	Notes         string           `json:"notes"`
	PaymentMethod string           `json:"payment_method"`
	// SessionKey links the order to the shopper's carts for conversion.
	SessionKey string `json:"-"`
}

type OrderNotifier interface {
	NotifyOrder(ctx context.Context, order *domain.Order) error
}

type OrderService struct {
	repo          repository.OrderRepository
	catalog       catalog.Validator
	numbers       *ordernumber.Generator
	notifier      OrderNotifier
	metrics       *metrics.Registry
	logger        *slog.Logger
	notifyTimeout time.Duration
	now           func() time.Time
}

// NewOrderService wires the order pipeline. The order_placed event is
// written to the outbox with the order and relayed by events.Relay.
func NewOrderService(repo repository.OrderRepository, validator catalog.Validator, numbers *ordernumber.Generator,
	notifier OrderNotifier, m *metrics.Registry, log *slog.Logger, notifyTimeout time.Duration) *OrderService {
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	if numbers == nil {
		numbers = ordernumber.New(ordernumber.DefaultMaxAttempts)
	}
	return &OrderService{
		repo:          repo,
		catalog:       validator,
		numbers:       numbers,
		notifier:      notifier,
		metrics:       m,
		logger:        log,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// CreateOrder validates the input, re-prices every line from the catalog,
// assigns a unique order number and persists the order together with its
// order_placed outbox event. The whole order is rejected if any product is
// missing or unavailable. Notifications run afterwards and never fail the
// call.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	log := logger.With(ctx, s.logger)

	customer, lines, err := normalizeOrderInput(in)
	if err != nil {
		s.metrics.OrdersRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := s.catalog.Validate(ctx, line.ProductID)
		if err != nil {
			s.metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
			return nil, err
		}
		items = append(items, domain.OrderItem{
			ProductRef:        product.ID,
			ProductName:       product.Name,
			Quantity:          line.Quantity,
			UnitPriceSnapshot: product.Price,
		})
	}

	paymentMethod := strings.TrimSpace(in.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = domain.DefaultPaymentMethod
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New(),
		Customer:      customer,
		Items:         items,
		Status:        domain.OrderStatusNotContacted,
		Notes:         strings.TrimSpace(in.Notes),
		PaymentMethod: paymentMethod,
		SessionKey:    in.SessionKey,
		OrderDate:     now,
		UpdatedAt:     now,
	}

	if err := s.persist(ctx, order, now); err != nil {
		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	log.Info("order created",
		"order_number", order.OrderNumber,
		"total_amount", order.TotalAmount(),
		"items", order.TotalItems())

	s.notify(ctx, log, order)

	return order, nil
}

// persist inserts the order under the first order number the store accepts.
func (s *OrderService) persist(ctx context.Context, order *domain.Order, now time.Time) error {
	number, attempt, err := s.numbers.Candidates(now, func(candidate string) (bool, error) {
		order.OrderNumber = candidate
		payload, err := events.MarshalOrderPlaced(order)
		if err != nil {
			return false, err
		}
		err = s.repo.Create(ctx, order, &repository.OutboxEvent{
			AggregateID: candidate,
			EventType:   events.EventTypeOrderPlaced,
			Payload:     payload,
		})
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			return false, nil
		}
		return err == nil, err
	})
	s.metrics.OrderNumberAttempts.Observe(float64(attempt))

	if errors.Is(err, ordernumber.ErrExhausted) {
		s.metrics.OrdersRejected.WithLabelValues("number_conflict").Inc()
		return fmt.Errorf("assign order number after %d attempts: %w: %w", attempt, domain.ErrConflict, err)
	}
	if err != nil {
		s.metrics.OrdersRejected.WithLabelValues("persistence").Inc()
		return fmt.Errorf("create order: %w", err)
	}

	if attempt > s.numbers.Attempts() {
		s.metrics.OrderNumberFallbacks.Inc()
		logger.With(ctx, s.logger).Warn("order number fallback used", "order_number", number)
	}
	order.OrderNumber = number
	return nil
}

func (s *OrderService) notify(ctx context.Context, log *slog.Logger, order *domain.Order) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyOrder(notifyCtx, order); err != nil {
		log.Error("order notification failed", "order_number", order.OrderNumber, "error", err)
	}
}

func (s *OrderService) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, domain.Invalid("order_number", "is required")
	}
	order, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.Invalid("status", "must be not_contacted or contacted")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, 0, domain.Invalid("to", "must not be before from")
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus applies an admin status and/or notes change.
func (s *OrderService) UpdateStatus(ctx context.Context, orderNumber string, status *domain.OrderStatus, notes *string) (*domain.Order, error) {
	if status == nil && notes == nil {
		return nil, domain.Invalid("status", "status or notes is required")
	}
	if status != nil && !status.Valid() {
		return nil, domain.Invalid("status", "must be not_contacted or contacted")
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		notes = &trimmed
	}

	order, err := s.repo.Update(ctx, orderNumber, domain.OrderUpdate{Status: status, Notes: notes}, s.now())
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderNumber, err)
	}
	logger.With(ctx, s.logger).Info("order updated", "order_number", orderNumber, "status", order.Status)
	return order, nil
}

func (s *OrderService) Delete(ctx context.Context, orderNumber string) error {
	if err := s.repo.Delete(ctx, orderNumber); err != nil {
		return fmt.Errorf("delete order %s: %w", orderNumber, err)
	}
	logger.With(ctx, s.logger).Info("order deleted", "order_number", orderNumber)
	return nil
}

// normalizeOrderInput trims and checks the customer and merges duplicate
// product lines, reporting every field problem at once.
func normalizeOrderInput(in CreateOrderInput) (domain.Customer, []OrderItemInput, error) {
	v := domain.NewValidationError()

	c := domain.Customer{
		Name:     strings.TrimSpace(in.Customer.Name),
		Email:    strings.TrimSpace(in.Customer.Email),
		Address:  strings.TrimSpace(in.Customer.Address),
		City:     strings.TrimSpace(in.Customer.City),
		District: strings.TrimSpace(in.Customer.District),
		Ward:     strings.TrimSpace(in.Customer.Ward),
	}
	if c.Name == "" {
		v.Add("customer.name", "is required")
	}
	phone, ok := domain.NormalizePhone(in.Customer.Phone)
	switch {
	case phone == "":
		v.Add("customer.phone", "is required")
	case !ok:
		v.Add("customer.phone", "must be 9 to 11 digits, optionally prefixed with +84")
	}
	c.Phone = phone
	if c.Email != "" && !domain.ValidEmail(c.Email) {
		v.Add("customer.email", "is not a valid email address")
	}

	if len(in.Items) == 0 {
		v.Add("items", "must contain at least one item")
	}
	merged := make([]OrderItemInput, 0, len(in.Items))
	index := make(map[string]int, len(in.Items))
	for i, it := range in.Items {
		field := "items[" + strconv.Itoa(i) + "]"
		productID := strings.TrimSpace(it.ProductID)
		if productID == "" {
			v.Add(field+".product_id", "is required")
			continue
		}
		if it.Quantity <= 0 {
			v.Add(field+".quantity", "must be a positive integer")
			continue
		}
		if j, seen := index[productID]; seen {
			merged[j].Quantity += it.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, OrderItemInput{ProductID: productID, Quantity: it.Quantity})
	}
	for i, it := range merged {
		if it.Quantity > MaxItemQuantity {
			v.Add("items["+strconv.Itoa(i)+"].quantity", fmt.Sprintf("must not exceed %d", MaxItemQuantity))
		}
	}

	if err := v.OrNil(); err != nil {
		return domain.Customer{}, nil, err
	}
	return c, merged, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrUnavailable):
		return "product_unavailable"
	default:
		return "catalog_error"
	}
}
