package cart

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
)

type Item struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"` // price when added; informational only
}

type Cart struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) Empty() bool { return c == nil || len(c.Items) == 0 }

// Upsert sets the quantity of productID, appending a new line if needed.
func (c *Cart) Upsert(it Item) {
	for i := range c.Items {
		if c.Items[i].ProductID == it.ProductID {
			c.Items[i].Quantity = it.Quantity
			c.Items[i].PriceCents = it.PriceCents
			return
		}
	}
	c.Items = append(c.Items, it)
}

func (c *Cart) Remove(productID string) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Repository persists one cart per buyer. Get returns an empty cart, never
// nil, when the buyer has none.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, userID string) error
}

// ProductReader is the catalog read the cart and the snapshot rely on.
type ProductReader interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}
