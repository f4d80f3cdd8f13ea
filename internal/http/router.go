package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Cart    *CartHandler
	Orders  *OrdersHandler
	Product *ProductHandler
	Contact *ContactHandler
	Admin   *AdminHandler
	Metrics http.Handler

	AdminToken         string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter assembles the public, session-scoped and admin routes behind the
// shared middleware stack and OpenTelemetry instrumentation.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))
	r.Use(MaxBodyMiddleware(cfg.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", cfg.Product.Get)
		r.Post("/contact", cfg.Contact.Submit)
		r.Get("/orders/{order_number}", cfg.Orders.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(session.Middleware)

			r.Post("/orders", cfg.Orders.CreateOrder)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.GetCart)
				r.Delete("/", cfg.Cart.ClearCart)
				r.Post("/items", cfg.Cart.AddItem)
				r.Put("/items/{product_id}", cfg.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", cfg.Cart.RemoveItem)
				r.Post("/sync", cfg.Cart.SyncCart)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminToken))

			r.Get("/carts", cfg.Admin.ListCarts)
			r.Post("/carts/cleanup", cfg.Admin.CleanupCarts)
			r.Get("/orders", cfg.Admin.ListOrders)
			r.Patch("/orders/{order_number}", cfg.Admin.UpdateOrder)
			r.Delete("/orders/{order_number}", cfg.Admin.DeleteOrder)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
