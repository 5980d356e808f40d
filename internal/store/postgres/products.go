package postgres

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, sku, name, price_cents, stock_quantity, status, vendor_id, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.StockQuantity, &p.Status, &p.VendorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *queries) GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]catalog.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (q *queries) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStockIfAvailable is one statement: the row lock taken by UPDATE
// serializes concurrent buyers and the WHERE clause rejects overselling.
func (q *queries) DecrementStockIfAvailable(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := q.db.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`, productID, qty)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (q *queries) IncrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := q.db.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return notFound("product", productID)
	}
	return nil
}
