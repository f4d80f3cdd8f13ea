package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	CartsCreated         prometheus.Counter
	CartMutations        *prometheus.CounterVec
	CartCacheHits        prometheus.Counter
	CartCacheMisses      prometheus.Counter
	CartsReaped          prometheus.Counter
	ReaperRuns           *prometheus.CounterVec
	OrdersCreated        prometheus.Counter
	OrdersRejected       *prometheus.CounterVec
	OrderNumberAttempts  prometheus.Histogram
	OrderNumberFallbacks prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	OrderEventsPublished *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	cartsCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_carts_created_total"})
	cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_cart_mutations_total"}, []string{"op"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_cart_cache_hits_total"})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_cart_cache_misses_total"})
	reaped := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_carts_reaped_total"})
	reaperRuns := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_reaper_runs_total"}, []string{"result"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_orders_created_total"})
	ordersRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_orders_rejected_total"}, []string{"reason"})
	numberAttempts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_order_number_attempts",
		Buckets: []float64{1, 2, 3, 5, 10},
	})
	numberFallbacks := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_order_number_fallbacks_total"})
	notifSent := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_notifications_sent_total"}, []string{"audience"})
	notifFailed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_notification_failures_total"}, []string{"audience"})
	eventsPublished := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "storefront_order_events_published_total"}, []string{"result"})

	r.MustRegister(cartsCreated, cartMutations, cacheHits, cacheMisses, reaped, reaperRuns,
		ordersCreated, ordersRejected, numberAttempts, numberFallbacks, notifSent, notifFailed, eventsPublished)

	return &Registry{
		reg:                  r,
		CartsCreated:         cartsCreated,
		CartMutations:        cartMutations,
		CartCacheHits:        cacheHits,
		CartCacheMisses:      cacheMisses,
		CartsReaped:          reaped,
		ReaperRuns:           reaperRuns,
		OrdersCreated:        ordersCreated,
		OrdersRejected:       ordersRejected,
		OrderNumberAttempts:  numberAttempts,
		OrderNumberFallbacks: numberFallbacks,
		NotificationsSent:    notifSent,
		NotificationFailures: notifFailed,
		OrderEventsPublished: eventsPublished,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
