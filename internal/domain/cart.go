package domain

import "time"

// DefaultCartTTL is how long a cart lives after creation. Activity does not extend it.
const DefaultCartTTL = 30 * 24 * time.Hour

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusAbandoned CartStatus = "abandoned"
	CartStatusConverted CartStatus = "converted"
)

type Cart struct {
	ID           string     `bson:"_id,omitempty" json:"id"`
	SessionKey   string     `bson:"session_key" json:"session_key"`
	Fingerprint  string     `bson:"fingerprint" json:"fingerprint"`
	Items        []CartItem `bson:"items" json:"items"`
	Status       CartStatus `bson:"status" json:"status"`
	LastActivity time.Time  `bson:"last_activity" json:"last_activity"`
	ExpiresAt    time.Time  `bson:"expires_at" json:"expires_at"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartItem is owned by its cart and addressed by ItemID, which never changes
// once the item is added.
type CartItem struct {
	ItemID            string    `bson:"item_id" json:"item_id"`
	ProductRef        string    `bson:"product_ref" json:"product_id"`
	Quantity          int       `bson:"quantity" json:"quantity"`
	UnitPriceSnapshot int64     `bson:"unit_price_snapshot" json:"unit_price"`
	AddedAt           time.Time `bson:"added_at" json:"added_at"`
}

func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, it := range c.Items {
		total += int64(it.Quantity) * it.UnitPriceSnapshot
	}
	return total
}

func (c *Cart) TotalItems() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// Item returns the entry for productRef, if any.
func (c *Cart) Item(productRef string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductRef == productRef {
			return it, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// NewCart builds an empty active cart for the given identity.
func NewCart(sessionKey, fingerprint string, now time.Time, ttl time.Duration) *Cart {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &Cart{
		SessionKey:   sessionKey,
		Fingerprint:  fingerprint,
		Items:        []CartItem{},
		Status:       CartStatusActive,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CartFilter narrows the admin cart listing.
type CartFilter struct {
	Status CartStatus
	Page   int
	Limit  int
}
