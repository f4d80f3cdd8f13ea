package domain

import "time"

// Product is the catalog view the cart and order flows consume. Price is in
// the currency's smallest unit.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Available   bool      `json:"available"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
