package cart

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// Line is one priced, immutable row of a checkout snapshot.
type Line struct {
	ProductID  string
	VendorID   string
	Quantity   int
	PriceCents int64
}

func (l Line) SubtotalCents() int64 { return l.PriceCents * int64(l.Quantity) }

// Snapshot freezes the cart into priced lines using the current catalog
// price. The cart's own price-at-add-time is ignored. Lines keep cart order;
// repeated products are merged into the first line.
func Snapshot(ctx context.Context, products ProductReader, c *Cart) ([]Line, error) {
	if c.Empty() {
		return nil, ErrEmptyCart
	}

	ids := make([]string, 0, len(c.Items))
	idx := make(map[string]int, len(c.Items))
	qty := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		if _, seen := idx[it.ProductID]; !seen {
			idx[it.ProductID] = len(ids)
			ids = append(ids, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}

	current, err := products.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load products: %w", err)
	}

	lines := make([]Line, 0, len(ids))
	for _, id := range ids {
		p, ok := current[id]
		if !ok {
			return nil, &orders.UnavailableError{ProductID: id, Reason: "not found"}
		}
		if p.Status != catalog.ProductActive {
			return nil, &orders.UnavailableError{ProductID: id, Reason: string(p.Status)}
		}
		lines = append(lines, Line{
			ProductID:  p.ID,
			VendorID:   p.VendorID,
			Quantity:   qty[id],
			PriceCents: p.PriceCents,
		})
	}
	return lines, nil
}

func Total(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.SubtotalCents()
	}
	return total
}
