package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

type ProductLister interface {
	List(ctx context.Context) ([]*domain.Product, error)
}

type ProductHandler struct {
	catalog ProductLister
	timeout time.Duration
	logger  *slog.Logger
}

func NewProductHandler(catalog ProductLister, timeout time.Duration, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

type ProductsResponse struct {
	Products []*domain.Product `json:"products"`
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.List(ctx)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}
