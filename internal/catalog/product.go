package catalog

import "time"

type ProductStatus string

const (
	ProductDraft      ProductStatus = "DRAFT"
	ProductActive     ProductStatus = "ACTIVE"
	ProductInactive   ProductStatus = "INACTIVE"
	ProductOutOfStock ProductStatus = "OUT_OF_STOCK"
)

// Product is the read model the checkout pipeline consumes. Catalog
// management (names, prices, status) lives elsewhere; only StockQuantity is
// written here, through the inventory ledger.
type Product struct {
	ID            string        `json:"id"`
	SKU           string        `json:"sku"`
	Name          string        `json:"name"`
	PriceCents    int64         `json:"priceCents"`
	StockQuantity int           `json:"stockQuantity"`
	Status        ProductStatus `json:"status"`
	VendorID      string        `json:"vendorId"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (p Product) Purchasable() bool { return p.Status == ProductActive }
