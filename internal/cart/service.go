package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

type Service struct {
	Repo     Repository
	Products ProductReader
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	return s.Repo.Get(ctx, userID)
}

// SetItem puts productID in the cart at qty, recording today's price.
func (s *Service) SetItem(ctx context.Context, userID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	ps, err := s.Products.GetProducts(ctx, []string{productID})
	if err != nil {
		return nil, fmt.Errorf("cart: load product: %w", err)
	}
	p, ok := ps[productID]
	if !ok {
		return nil, &orders.UnavailableError{ProductID: productID, Reason: "not found"}
	}
	if p.Status != catalog.ProductActive {
		return nil, &orders.UnavailableError{ProductID: productID, Reason: string(p.Status)}
	}

	c, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Upsert(Item{ProductID: productID, Quantity: qty, PriceCents: p.PriceCents})
	c.UpdatedAt = time.Now().UTC()
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	c, err := s.Repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !c.Remove(productID) {
		return c, nil
	}
	c.UpdatedAt = time.Now().UTC()
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
