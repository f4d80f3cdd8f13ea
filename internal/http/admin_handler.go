package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartAdmin interface {
	ListCarts(ctx context.Context, filter domain.CartFilter) ([]*domain.Cart, int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

type OrderAdmin interface {
	List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int64, error)
	UpdateStatus(ctx context.Context, orderNumber string, status *domain.OrderStatus, notes *string) (*domain.Order, error)
	Delete(ctx context.Context, orderNumber string) error
}

type AdminHandler struct {
	carts   CartAdmin
	orders  OrderAdmin
	timeout time.Duration
	logger  *slog.Logger
}

func NewAdminHandler(carts CartAdmin, orders OrderAdmin, timeout time.Duration, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		carts:   carts,
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

type PageResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

type AdminCartDTO struct {
	CartResponseDTO
	SessionKey   string    `json:"session_key"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

type UpdateOrderRequestDTO struct {
	Status *domain.OrderStatus `json:"status"`
	Notes  *string             `json:"notes"`
}

type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// GET /api/v1/admin/carts
func (h *AdminHandler) ListCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	page, limit := paging(q)
	filter := domain.CartFilter{
		Status: domain.CartStatus(strings.TrimSpace(q.Get("status"))),
		Page:   page,
		Limit:  limit,
	}

	carts, total, err := h.carts.ListCarts(ctx, filter)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	items := make([]AdminCartDTO, 0, len(carts))
	for _, c := range carts {
		items = append(items, AdminCartDTO{
			CartResponseDTO: convertCart(c),
			SessionKey:      c.SessionKey,
			LastActivity:    c.LastActivity,
			CreatedAt:       c.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, PageResponse[AdminCartDTO]{Items: items, Total: total, Page: page, Limit: limit})
}

// POST /api/v1/admin/carts/cleanup
func (h *AdminHandler) CleanupCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	deleted, err := h.carts.CleanupExpired(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	page, limit := paging(q)
	filter := domain.OrderFilter{
		Status: domain.OrderStatus(strings.TrimSpace(q.Get("status"))),
		Phone:  strings.TrimSpace(q.Get("phone")),
		Search: strings.TrimSpace(q.Get("search")),
		Page:   page,
		Limit:  limit,
	}

	var ok bool
	if filter.From, ok = parseDate(q.Get("from"), false); !ok {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: "validation_failed",
			Fields: map[string]string{"from": "must be YYYY-MM-DD or RFC 3339"}})
		return
	}
	if filter.To, ok = parseDate(q.Get("to"), true); !ok {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: "validation_failed",
			Fields: map[string]string{"to": "must be YYYY-MM-DD or RFC 3339"}})
		return
	}

	orders, total, err := h.orders.List(ctx, filter)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	items := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		items = append(items, convertOrder(o))
	}
	respondJSON(w, http.StatusOK, PageResponse[OrderResponseDTO]{Items: items, Total: total, Page: page, Limit: limit})
}

// PATCH /api/v1/admin/orders/{order_number}
func (h *AdminHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber := strings.TrimSpace(chi.URLParam(r, "order_number"))
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order_number is required")
		return
	}

	var req UpdateOrderRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, orderNumber, req.Status, req.Notes)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrder(order))
}

// DELETE /api/v1/admin/orders/{order_number}
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber := strings.TrimSpace(chi.URLParam(r, "order_number"))
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "missing_order_number", "order_number is required")
		return
	}

	if err := h.orders.Delete(ctx, orderNumber); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func paging(q url.Values) (page, limit int) {
	page, _ = strconv.Atoi(q.Get("page"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// parseDate accepts a calendar day or an RFC 3339 timestamp. A bare day used
// as an upper bound covers the whole day, since the store treats "to" as
// exclusive.
func parseDate(v string, upper bool) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, false
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}
