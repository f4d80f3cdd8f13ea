package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/internal/session"
	"github.com/go-chi/chi/v5"
)

type OrderPlacer interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderPlacer
	timeout time.Duration
	logger  *slog.Logger
}

func NewOrdersHandler(orders OrderPlacer, timeout time.Duration, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

// OrderResponseDTO adds the derived totals to the stored order.
type OrderResponseDTO struct {
	*domain.Order
	TotalAmount int64 `json:"total_amount"`
	TotalItems  int   `json:"total_items"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		Order:       o,
		TotalAmount: o.TotalAmount(),
		TotalItems:  o.TotalItems(),
	}
}

// POST /api/v1/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.CreateOrderInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if id, ok := session.FromContext(r.Context()); ok {
		req.SessionKey = id.SessionKey
	}

	order, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertOrder(order))
}

// GET /api/v1/orders/{order_number}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber := strings.TrimSpace(chi.URLParam(r, "order_number"))
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order_number is required")
		return
	}

	order, err := h.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}
