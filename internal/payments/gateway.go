package payments

import (
	"context"
	"errors"
	"fmt"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

type GatewayRequest struct {
	OrderID     string
	PaymentID   string
	UserID      string
	AmountCents int64
	Currency    string
	Method      Method
}

type GatewayIntent struct {
	ProviderPaymentID string
	ClientSecret      string
}

// Gateway creates the provider-side object the buyer pays against.
type Gateway interface {
	CreateIntent(ctx context.Context, req GatewayRequest) (GatewayIntent, error)
}

// Gateways routes by provider name.
type Gateways map[Provider]Gateway

func (g Gateways) For(p Provider) (Gateway, error) {
	gw, ok := g[p]
	if !ok || gw == nil {
		return nil, fmt.Errorf("%w: %s not configured", ErrProviderUnavailable, p)
	}
	return gw, nil
}
