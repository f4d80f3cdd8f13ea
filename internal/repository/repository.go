package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCartNotFound         = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrItemNotFound         = fmt.Errorf("item %w in cart", domain.ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", domain.ErrNotFound)
	ErrDuplicateOrderNumber = fmt.Errorf("order number already exists: %w", domain.ErrConflict)
)

// CartRepository defines the interface for cart data operations.
// Every method is a single-document atomic operation.
type CartRepository interface {
	// GetOrCreate is an atomic find-or-insert keyed by (sessionKey, fingerprint).
	GetOrCreate(ctx context.Context, sessionKey, fingerprint string, now time.Time, ttl time.Duration) (*domain.Cart, bool, error)
	GetByID(ctx context.Context, cartID string) (*domain.Cart, error)
	// AddItem accumulates onto an existing entry for the same product or
	// appends item.
	AddItem(ctx context.Context, cartID string, item domain.CartItem, now time.Time) (*domain.Cart, error)
	SetItemQuantity(ctx context.Context, cartID, productRef string, quantity int, now time.Time) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, productRef string, now time.Time) (*domain.Cart, error)
	ReplaceItems(ctx context.Context, cartID string, items []domain.CartItem, status domain.CartStatus, now time.Time) (*domain.Cart, error)
	MarkConvertedBySession(ctx context.Context, sessionKey string, now time.Time) ([]*domain.Cart, error)
	List(ctx context.Context, filter domain.CartFilter) ([]*domain.Cart, int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is an event row written in the same transaction as the
// order it describes and relayed to the broker afterwards.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// OrderRepository persists orders. Order numbers are unique at the store
// level; Create reports a collision as ErrDuplicateOrderNumber.
type OrderRepository interface {
	// Create inserts the order and, when event is not nil, its outbox row
	// atomically. A collision leaves neither row behind.
	Create(ctx context.Context, order *domain.Order, event *OutboxEvent) error
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int64, error)
	Update(ctx context.Context, orderNumber string, update domain.OrderUpdate, now time.Time) (*domain.Order, error)
	Delete(ctx context.Context, orderNumber string) error
}

// OutboxStore is the relay side of the order outbox.
type OutboxStore interface {
	// GetUnprocessedEvents returns up to limit pending events, oldest first.
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64, now time.Time) error
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * limit, limit
}
