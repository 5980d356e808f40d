package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, order_id, amount_cents, currency, provider, method, status,
	COALESCE(provider_payment_id, ''), COALESCE(client_secret, ''), provider_response, created_at, updated_at`

func scanPayment(row pgx.Row) (*payments.Payment, error) {
	var (
		p   payments.Payment
		raw []byte
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.AmountCents, &p.Currency, &p.Provider, &p.Method, &p.Status,
		&p.ProviderPaymentID, &p.ClientSecret, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	p.ProviderResponse = raw
	return &p, nil
}

func (q *queries) InsertPayment(ctx context.Context, p *payments.Payment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payments(id, order_id, amount_cents, currency, provider, method, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.AmountCents, p.Currency, p.Provider, p.Method, p.Status, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err, "payments_order_id_key") {
		return fmt.Errorf("order %s: %w", p.OrderID, orders.ErrDuplicateIntent)
	}
	return mapErr(err)
}

func (q *queries) GetPayment(ctx context.Context, id string) (*payments.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (q *queries) GetPaymentByOrder(ctx context.Context, orderID string) (*payments.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
}

func (q *queries) GetPaymentByProviderID(ctx context.Context, provider payments.Provider, providerPaymentID string) (*payments.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_payment_id = $2`, provider, providerPaymentID))
}

func (q *queries) SetProviderReference(ctx context.Context, paymentID, providerPaymentID, clientSecret string) error {
	ct, err := q.db.Exec(ctx, `
		UPDATE payments SET provider_payment_id = $2, client_secret = NULLIF($3,''), updated_at = now()
		WHERE id = $1`, paymentID, providerPaymentID, clientSecret)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return notFound("payment", paymentID)
	}
	return nil
}

// SetPaymentStatus is a compare-and-set on status; the raw provider body is
// kept for audit when given.
func (q *queries) SetPaymentStatus(ctx context.Context, paymentID string, from, to payments.Status, providerResponse []byte) (bool, error) {
	var raw any
	if len(providerResponse) > 0 {
		raw = string(providerResponse)
	}
	ct, err := q.db.Exec(ctx, `
		UPDATE payments SET status = $3, provider_response = COALESCE($4::jsonb, provider_response), updated_at = now()
		WHERE id = $1 AND status = $2`, paymentID, from, to, raw)
	if err != nil {
		return false, mapErr(err)
	}
	return ct.RowsAffected() == 1, nil
}
