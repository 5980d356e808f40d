package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
)

func (q *queries) InsertReservations(ctx context.Context, rs []orders.Reservation) error {
	for _, r := range rs {
		if _, err := q.db.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, quantity, status, expires_at)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (order_id, product_id) DO NOTHING`,
			r.OrderID, r.ProductID, r.Quantity, r.Status, r.ExpiresAt); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (q *queries) TransitionReservations(ctx context.Context, orderID string, from []orders.ReservationStatus, to orders.ReservationStatus) ([]orders.Reservation, error) {
	states := make([]string, 0, len(from))
	for _, f := range from {
		states = append(states, string(f))
	}
	rows, err := q.db.Query(ctx, `
		UPDATE reservations SET status = $3, updated_at = now()
		WHERE order_id = $1 AND status = ANY($2)
		RETURNING order_id, product_id, quantity, status, expires_at, created_at`, orderID, states, to)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []orders.Reservation
	for rows.Next() {
		var r orders.Reservation
		if err := rows.Scan(&r.OrderID, &r.ProductID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapErr(rows.Err())
}

func (q *queries) ExpiredReservationOrders(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT r.order_id
		FROM reservations r JOIN orders o ON o.id = r.order_id
		WHERE r.status = 'RESERVED' AND r.expires_at < $1 AND o.status = 'PENDING'
		ORDER BY r.order_id
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordEvent relies on the (provider, event_id) primary key: of several
// concurrent inserts exactly one affects a row.
func (q *queries) RecordEvent(ctx context.Context, provider payments.Provider, eventID string) (bool, error) {
	ct, err := q.db.Exec(ctx, `
		INSERT INTO webhook_events(provider, event_id) VALUES ($1,$2)
		ON CONFLICT (provider, event_id) DO NOTHING`, provider, eventID)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}

func (q *queries) EventRecorded(ctx context.Context, provider payments.Provider, eventID string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID).Scan(&ok)
	return ok, mapErr(err)
}
