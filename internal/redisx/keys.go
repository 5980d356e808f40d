package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{user_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup hint for processed events: dedup:{scope}:{id}. Postgres stays the source of truth.
	KeyDedup = "dedup:%s:%s"

	// Buyer cart: cart:user:{user_id} -> JSON cart
	KeyCart = "cart:user:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCart        = 7 * 24 * time.Hour
)
