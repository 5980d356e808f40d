package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayGatewayCreatesOrder(t *testing.T) {
	var got razorpayOrderReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_123","status":"created"}`))
	}))
	defer srv.Close()

	gw := NewRazorpayGateway(srv.URL, "rzp_key", "rzp_secret")
	out, err := gw.CreateIntent(context.Background(), GatewayRequest{
		OrderID: "o1", PaymentID: "p1", AmountCents: 2500, Currency: "inr",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_123", out.ProviderPaymentID)
	assert.Equal(t, int64(2500), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Equal(t, "o1", got.Notes["order_id"])
}

func TestRazorpayGatewayMapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too low"}}`))
	}))
	defer srv.Close()

	gw := NewRazorpayGateway(srv.URL, "k", "s")
	_, err := gw.CreateIntent(context.Background(), GatewayRequest{OrderID: "o1", PaymentID: "p1", AmountCents: 1, Currency: "INR"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "amount too low")
}
