package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultRazorpayBaseURL = "https://api.razorpay.com"

// RazorpayGateway creates Razorpay orders; the buyer completes payment
// against the returned order id with Razorpay Checkout.
type RazorpayGateway struct {
	client *resty.Client
}

func NewRazorpayGateway(baseURL, keyID, keySecret string) *RazorpayGateway {
	if baseURL == "" {
		baseURL = DefaultRazorpayBaseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, keySecret).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")
	return &RazorpayGateway{client: c}
}

type razorpayOrderReq struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type razorpayOrderResp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type razorpayErrResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *RazorpayGateway) CreateIntent(ctx context.Context, req GatewayRequest) (GatewayIntent, error) {
	var out razorpayOrderResp
	var apiErr razorpayErrResp
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(razorpayOrderReq{
			Amount:   req.AmountCents,
			Currency: strings.ToUpper(req.Currency),
			Receipt:  req.PaymentID,
			Notes:    map[string]string{"order_id": req.OrderID, "payment_id": req.PaymentID},
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/orders")
	if err != nil {
		return GatewayIntent{}, fmt.Errorf("%w: razorpay: %v", ErrProviderUnavailable, err)
	}
	if resp.IsError() {
		return GatewayIntent{}, fmt.Errorf("%w: razorpay: %d %s %s", ErrProviderUnavailable,
			resp.StatusCode(), apiErr.Error.Code, apiErr.Error.Description)
	}
	if out.ID == "" {
		return GatewayIntent{}, fmt.Errorf("%w: razorpay: empty order id", ErrProviderUnavailable)
	}
	return GatewayIntent{ProviderPaymentID: out.ID}, nil
}
