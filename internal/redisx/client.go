package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Dedupe is a best-effort "already processed" marker in front of the
// database ledger. A miss never means "new"; only the ledger decides that.
type Dedupe struct {
	rdb   *redis.Client
	scope string
}

func NewDedupe(rdb *redis.Client, scope string) *Dedupe {
	return &Dedupe{rdb: rdb, scope: scope}
}

func (d *Dedupe) Seen(ctx context.Context, id string) bool {
	ok, err := Exists(ctx, d.rdb, fmt.Sprintf(KeyDedup, d.scope, id))
	return err == nil && ok
}

func (d *Dedupe) Mark(ctx context.Context, id string) {
	_ = d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, d.scope, id), "1", TTLDedup).Err()
}

type StatusEntry struct {
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatusCache keeps the last known order status for cheap polling.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (StatusEntry, bool) {
	var e StatusEntry
	b, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		return e, false
	}
	if json.Unmarshal(b, &e) != nil {
		return e, false
	}
	return e, true
}

func (c *StatusCache) Set(ctx context.Context, orderID string, e StatusEntry) {
	b, _ := json.Marshal(e)
	_ = c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) {
	_ = c.rdb.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}

// Idempotency maps a buyer-supplied Idempotency-Key to the order it created.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

func (i *Idempotency) Lookup(ctx context.Context, userID, key string) (string, bool) {
	v, err := i.rdb.Get(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return "", false
	}
	return v, true
}

func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) {
	_ = i.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key), orderID, TTLIdempotency).Err()
}
