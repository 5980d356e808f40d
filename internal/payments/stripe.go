package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
)

// StripeGateway creates Stripe PaymentIntents. The payment id doubles as the
// Stripe idempotency key so a retried create never yields a second intent.
type StripeGateway struct {
	client *paymentintent.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{client: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req GatewayRequest) (GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{stripeMethodType(req.Method)}),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.PaymentID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("user_id", req.UserID)

	pi, err := g.client.New(params)
	if err != nil {
		return GatewayIntent{}, fmt.Errorf("%w: stripe: %v", ErrProviderUnavailable, err)
	}
	return GatewayIntent{ProviderPaymentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func stripeMethodType(m Method) string {
	switch m {
	case MethodWallet:
		return "link"
	default:
		return "card"
	}
}
