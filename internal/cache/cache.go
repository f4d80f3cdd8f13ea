package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

// CartCache holds the latest copy of a cart keyed by its owning identity.
// It is a read-through accelerator only; the cart store stays the source of
// truth.
//
// Every Delete bumps a per-identity generation. A copy read from the store
// after observing generation g is only written by Set while the generation
// is still g, so an invalidation racing a load always wins.
type CartCache interface {
	Get(ctx context.Context, sessionKey, fingerprint string) (*domain.Cart, error)
	Generation(ctx context.Context, sessionKey, fingerprint string) (int64, error)
	Set(ctx context.Context, cart *domain.Cart, generation int64) error
	Delete(ctx context.Context, sessionKey, fingerprint string) error
}

var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrStaleWrite = errors.New("cart invalidated since it was read")
)
