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

// CartManager is the cart surface the handler depends on.
type CartManager interface {
	GetCart(ctx context.Context, id session.Identity) (*domain.Cart, error)
	AddItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, id session.Identity, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, id session.Identity) (*domain.Cart, error)
	SyncCart(ctx context.Context, id session.Identity, items []service.SyncItem) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartManager
	timeout time.Duration
	logger  *slog.Logger
}

func NewCartHandler(carts CartManager, timeout time.Duration, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type SyncCartRequestDTO struct {
	Items []service.SyncItem `json:"items"`
}

type CartItemDTO struct {
	ItemID    string    `json:"item_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Subtotal  int64     `json:"subtotal"`
	AddedAt   time.Time `json:"added_at"`
}

type CartResponseDTO struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Items       []CartItemDTO `json:"items"`
	TotalAmount int64         `json:"total_amount"`
	TotalItems  int           `json:"total_items"`
	ExpiresAt   time.Time     `json:"expires_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func convertCart(c *domain.Cart) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, CartItemDTO{
			ItemID:    it.ItemID,
			ProductID: it.ProductRef,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPriceSnapshot,
			Subtotal:  int64(it.Quantity) * it.UnitPriceSnapshot,
			AddedAt:   it.AddedAt,
		})
	}
	return CartResponseDTO{
		ID:          c.ID,
		Status:      string(c.Status),
		Items:       items,
		TotalAmount: c.TotalAmount(),
		TotalItems:  c.TotalItems(),
		ExpiresAt:   c.ExpiresAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	cart, err := h.carts.GetCart(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(ctx, id, req.ProductID, quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertCart(cart))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "product_id"))
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	cart, err := h.carts.UpdateItem(ctx, id, productID, *req.Quantity)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "product_id"))
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, id, productID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	cart, err := h.carts.ClearCart(ctx, id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}

// POST /api/v1/cart/sync
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_session", "session could not be resolved")
		return
	}

	var req SyncCartRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.carts.SyncCart(ctx, id, req.Items)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCart(cart))
}
