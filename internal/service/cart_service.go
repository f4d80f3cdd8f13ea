package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// MaxItemQuantity caps a single cart line.
const MaxItemQuantity = 999

// SyncItem is one entry of a client-side cart. Quantity arrives as whatever
// the client sent (number, numeric string or garbage).
type SyncItem struct {
	ProductID string `json:"product_id"`
	Quantity  any    `json:"quantity"`
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Validator
	metrics *metrics.Registry
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, validator catalog.Validator, m *metrics.Registry, log *slog.Logger, ttl time.Duration) *CartService {
	if ttl <= 0 {
		ttl = domain.DefaultCartTTL
	}
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: validator,
		metrics: m,
		logger:  log,
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetCart returns the identity's cart, creating an empty one on first use.
func (s *CartService) GetCart(ctx context.Context, id session.Identity) (*domain.Cart, error) {
	key := id.SessionKey + ":" + id.Fingerprint

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, id.SessionKey, id.Fingerprint)
		if err == nil && !cart.IsExpired(s.now()) {
			s.metrics.CartCacheHits.Inc()
			return cart, nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.With(ctx, s.logger).Warn("cache get error", "error", err) // log cache error but continue
		}
		s.metrics.CartCacheMisses.Inc()

		return s.loadCart(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// loadCart reads the cart from the store. The cache generation is taken
// before the read so a copy invalidated in the meantime is not cached.
func (s *CartService) loadCart(ctx context.Context, id session.Identity) (*domain.Cart, error) {
	gen, genErr := s.cache.Generation(ctx, id.SessionKey, id.Fingerprint)

	cart, created, err := s.repo.GetOrCreate(ctx, id.SessionKey, id.Fingerprint, s.now(), s.ttl)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if created {
		s.metrics.CartsCreated.Inc()
		logger.With(ctx, s.logger).Info("cart created", "cart_id", cart.ID)
	}

	if genErr != nil {
		logger.With(ctx, s.logger).Warn("cache generation error", "error", genErr)
		return cart, nil
	}
	s.storeInCache(ctx, cart, gen)
	return cart, nil
}

// AddItem puts quantity units of productID into the cart at the current
// catalog price. An existing line keeps its original price and accumulates.
func (s *CartService) AddItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.Invalid("product_id", "is required")
	}
	if quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be a positive integer")
	}
	if quantity > MaxItemQuantity {
		return nil, domain.Invalid("quantity", fmt.Sprintf("must not exceed %d", MaxItemQuantity))
	}

	product, err := s.catalog.Validate(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, "add", func(cart *domain.Cart, now time.Time) (*domain.Cart, error) {
		if existing, ok := cart.Item(productID); ok && existing.Quantity+quantity > MaxItemQuantity {
			return nil, domain.Invalid("quantity", fmt.Sprintf("cart line must not exceed %d", MaxItemQuantity))
		}
		return s.repo.AddItem(ctx, cart.ID, domain.CartItem{
			ProductRef:        productID,
			Quantity:          quantity,
			UnitPriceSnapshot: product.Price,
		}, now)
	})
}

// UpdateItem overwrites the quantity of an existing line. A quantity of zero
// or less removes the line.
func (s *CartService) UpdateItem(ctx context.Context, id session.Identity, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, id, productID)
	}
	if quantity > MaxItemQuantity {
		return nil, domain.Invalid("quantity", fmt.Sprintf("must not exceed %d", MaxItemQuantity))
	}

	return s.mutate(ctx, id, "update", func(cart *domain.Cart, now time.Time) (*domain.Cart, error) {
		return s.repo.SetItemQuantity(ctx, cart.ID, productID, quantity, now)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, id session.Identity, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, id, "remove", func(cart *domain.Cart, now time.Time) (*domain.Cart, error) {
		return s.repo.RemoveItem(ctx, cart.ID, productID, now)
	})
}

// ClearCart empties the cart and marks it abandoned.
func (s *CartService) ClearCart(ctx context.Context, id session.Identity) (*domain.Cart, error) {
	return s.mutate(ctx, id, "clear", func(cart *domain.Cart, now time.Time) (*domain.Cart, error) {
		return s.repo.ReplaceItems(ctx, cart.ID, nil, domain.CartStatusAbandoned, now)
	})
}

// SyncCart replaces the cart contents with a client-side copy. Unknown or
// unavailable products are dropped, unparsable quantities count as 1,
// duplicate products are summed and every line is re-priced from the
// catalog.
func (s *CartService) SyncCart(ctx context.Context, id session.Identity, items []SyncItem) (*domain.Cart, error) {
	order := make([]string, 0, len(items))
	quantities := make(map[string]int, len(items))
	for _, it := range items {
		productID := strings.TrimSpace(it.ProductID)
		if productID == "" {
			continue
		}
		if _, seen := quantities[productID]; !seen {
			order = append(order, productID)
		}
		quantities[productID] = min(quantities[productID]+CoerceQuantity(it.Quantity), MaxItemQuantity)
	}

	log := logger.With(ctx, s.logger)
	lines := make([]domain.CartItem, 0, len(order))
	for _, productID := range order {
		product, err := s.catalog.Validate(ctx, productID)
		if err != nil {
			var perr *domain.ProductError
			if errors.As(err, &perr) {
				log.Info("sync dropped product", "product_id", productID, "reason", perr.Error())
				continue
			}
			return nil, err
		}
		lines = append(lines, domain.CartItem{
			ProductRef:        productID,
			Quantity:          quantities[productID],
			UnitPriceSnapshot: product.Price,
		})
	}

	return s.mutate(ctx, id, "sync", func(cart *domain.Cart, now time.Time) (*domain.Cart, error) {
		replaced := make([]domain.CartItem, len(lines))
		for i, line := range lines {
			if existing, ok := cart.Item(line.ProductRef); ok {
				line.ItemID = existing.ItemID
				line.AddedAt = existing.AddedAt
			} else {
				line.ItemID = newItemID()
				line.AddedAt = now
			}
			replaced[i] = line
		}
		return s.repo.ReplaceItems(ctx, cart.ID, replaced, domain.CartStatusActive, now)
	})
}

// ListCarts is the admin view over all carts.
func (s *CartService) ListCarts(ctx context.Context, filter domain.CartFilter) ([]*domain.Cart, int64, error) {
	carts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list carts: %w", err)
	}
	return carts, total, nil
}

// CleanupExpired deletes every expired cart now rather than waiting for the
// next reaper sweep.
func (s *CartService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired carts: %w", err)
	}
	s.metrics.CartsReaped.Add(float64(deleted))
	logger.With(ctx, s.logger).Info("expired carts removed", "deleted", deleted)
	return deleted, nil
}

// mutate resolves the identity's cart and applies fn to it. A cached cart
// that the store no longer has (reaped since it was cached) is dropped and
// fn is retried once against a freshly created cart.
func (s *CartService) mutate(ctx context.Context, id session.Identity, op string, fn func(cart *domain.Cart, now time.Time) (*domain.Cart, error)) (*domain.Cart, error) {
	cart, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := fn(cart, s.now())
	if errors.Is(err, repository.ErrCartNotFound) {
		s.invalidateCache(ctx, id)
		cart, err = s.loadCart(ctx, id)
		if err != nil {
			return nil, err
		}
		updated, err = fn(cart, s.now())
	}
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrNotFound) {
			logger.With(ctx, s.logger).Error("cart mutation failed", "op", op, "cart_id", cart.ID, "error", err)
		}
		return nil, err
	}

	s.metrics.CartMutations.WithLabelValues(op).Inc()
	s.invalidateCache(ctx, id)
	return updated, nil
}

func (s *CartService) storeInCache(ctx context.Context, cart *domain.Cart, generation int64) {
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	err := s.cache.Set(setCtx, cart, generation)
	switch {
	case errors.Is(err, cache.ErrStaleWrite):
		logger.With(ctx, s.logger).Debug("cart invalidated while loading, not cached", "cart_id", cart.ID)
	case err != nil:
		logger.With(ctx, s.logger).Warn("cache set error", "error", err)
	}
}

func (s *CartService) invalidateCache(ctx context.Context, id session.Identity) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.cache.Delete(delCtx, id.SessionKey, id.Fingerprint); err != nil {
		logger.With(ctx, s.logger).Warn("cache invalidate error", "error", err)
	}
}

func newItemID() string {
	return uuid.NewString()
}

// CoerceQuantity turns a client-supplied quantity into a positive integer,
// falling back to 1 for anything unparsable, fractional below one, or not
// positive.
func CoerceQuantity(v any) int {
	var n float64
	switch q := v.(type) {
	case int:
		n = float64(q)
	case int64:
		n = float64(q)
	case float64:
		n = q
	case json.Number:
		f, err := q.Float64()
		if err != nil {
			return 1
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
		if err != nil {
			return 1
		}
		n = f
	default:
		return 1
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 1
	}
	n = math.Trunc(n)
	if n < 1 {
		return 1
	}
	if n > MaxItemQuantity {
		return MaxItemQuantity
	}
	return int(n)
}
