package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, user_id, status, total_cents, currency, shipping_address, billing_address,
	payment_status, COALESCE(payment_id, ''), COALESCE(cancel_reason, ''), COALESCE(idempotency_key, ''),
	created_at, updated_at`

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, orders.ErrNotFound)
}

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency, &o.ShippingAddress, &o.BillingAddress,
		&o.PaymentStatus, &o.PaymentID, &o.CancelReason, &o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (q *queries) InsertOrder(ctx context.Context, o *orders.Order) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents, currency, shipping_address, billing_address,
			payment_status, cancel_reason, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),NULLIF($10,''),$11,$12)`,
		o.ID, o.UserID, o.Status, o.TotalCents, o.Currency, o.ShippingAddress, o.BillingAddress,
		o.PaymentStatus, o.CancelReason, o.IdempotencyKey, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err, "orders_user_id_idempotency_key_key") {
		return fmt.Errorf("order key %q: %w", o.IdempotencyKey, orders.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return mapErr(err)
	}
	for _, it := range o.Items {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, price_cents, vendor_id)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, o.ID, it.ProductID, it.Quantity, it.PriceCents, it.VendorID); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := q.loadItems(ctx, []*orders.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (q *queries) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*orders.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if err != nil {
		return nil, err
	}
	if err := q.loadItems(ctx, []*orders.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (q *queries) ListOrders(ctx context.Context, f orders.Filter) ([]orders.Order, int, error) {
	f = f.Normalize()
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := q.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var list []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := q.loadItems(ctx, list); err != nil {
		return nil, 0, err
	}
	out := make([]orders.Order, 0, len(list))
	for _, o := range list {
		out = append(out, *o)
	}
	return out, total, nil
}

func (q *queries) loadItems(ctx context.Context, list []*orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[string]*orders.Order, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price_cents, vendor_id
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, ids)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceCents, &it.VendorID); err != nil {
			return err
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// SetOrderStatus is a compare-and-set: it only writes when the row still
// holds from.
func (q *queries) SetOrderStatus(ctx context.Context, orderID string, from, to orders.Status, reason string) (bool, error) {
	ct, err := q.db.Exec(ctx, `
		UPDATE orders SET status = $3, cancel_reason = COALESCE(NULLIF($4,''), cancel_reason), updated_at = now()
		WHERE id = $1 AND status = $2`, orderID, from, to, reason)
	if err != nil {
		return false, mapErr(err)
	}
	if ct.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	if !exists {
		return false, notFound("order", orderID)
	}
	return false, nil
}

func (q *queries) SetOrderPayment(ctx context.Context, orderID, paymentID string, status payments.Status) error {
	ct, err := q.db.Exec(ctx, `
		UPDATE orders SET payment_id = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
		orderID, paymentID, status)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return notFound("order", orderID)
	}
	return nil
}
