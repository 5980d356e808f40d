package cart

import (
	"context"
	"sync"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]Cart)}
}

func (r *MemoryRepository) Get(_ context.Context, userID string) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[userID]
	if !ok {
		return &Cart{UserID: userID}, nil
	}
	c.Items = append([]Item(nil), c.Items...)
	return &c, nil
}

func (r *MemoryRepository) Save(_ context.Context, c *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	r.carts[c.UserID] = cp
	return nil
}

func (r *MemoryRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}
