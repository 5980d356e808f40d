package webhook_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/payments"
	"github.com/ariefcatur/go-marketplace-orders/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func razorpayDelivery(eventID string, body []byte) webhook.Delivery {
	return webhook.Delivery{
		Provider:  payments.ProviderRazorpay,
		EventID:   eventID,
		Signature: webhook.SignRazorpay(body, razorpaySecret),
		Payload:   body,
	}
}

func TestRazorpayAdapterMapsEvents(t *testing.T) {
	a := &webhook.RazorpayAdapter{Secret: razorpaySecret}
	cases := []struct {
		body   string
		status payments.Status
		ref    string
	}{
		{`{"event":"payment.authorized","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`, payments.StatusProcessing, "order_9"},
		{`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`, payments.StatusSucceeded, "order_9"},
		{`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_9"}}}}`, payments.StatusSucceeded, "order_9"},
		{`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`, payments.StatusFailed, "order_9"},
		{`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1"}},"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`, payments.StatusRefunded, "order_9"},
		{`{"event":"invoice.paid","payload":{}}`, "", ""},
	}
	for _, tc := range cases {
		ev, err := a.Parse(razorpayDelivery("evt_1", []byte(tc.body)))
		require.NoError(t, err, tc.body)
		assert.Equal(t, tc.status, ev.Status, tc.body)
		assert.Equal(t, tc.ref, ev.ProviderPaymentID, tc.body)
		assert.Equal(t, "evt_1", ev.ID)
	}
}

func TestRazorpayAdapterRejects(t *testing.T) {
	a := &webhook.RazorpayAdapter{Secret: razorpaySecret}
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"order_id":"order_9"}}}}`)

	d := razorpayDelivery("evt_1", body)
	d.Signature = webhook.SignRazorpay(body, "wrong")
	_, err := a.Parse(d)
	assert.ErrorIs(t, err, webhook.ErrSignature)

	_, err = a.Parse(razorpayDelivery("", body))
	assert.ErrorIs(t, err, webhook.ErrMalformed)

	noRef := []byte(`{"event":"payment.captured","payload":{}}`)
	_, err = a.Parse(razorpayDelivery("evt_2", noRef))
	assert.ErrorIs(t, err, webhook.ErrMalformed)
}

func TestRazorpayCaptureConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// rebind the fixture's payment to a Razorpay order
	require.NoError(t, f.store.InsertOrder(ctx, &orders.Order{ID: "o2", UserID: "u2", Status: orders.StatusPending, TotalCents: 1000, Currency: "INR"}))
	require.NoError(t, f.store.InsertPayment(ctx, &payments.Payment{
		ID: "p2", OrderID: "o2", AmountCents: 1000, Currency: "INR",
		Provider: payments.ProviderRazorpay, Method: payments.MethodUPI, Status: payments.StatusPending,
	}))
	require.NoError(t, f.store.SetProviderReference(ctx, "p2", "order_9", ""))

	body := []byte(`{"event":"payment.captured","account_id":"acc_1","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`)
	out, err := f.rec.Apply(ctx, razorpayDelivery("evt_rzp_1", body))
	require.NoError(t, err)
	assert.Equal(t, webhook.Applied, out)

	o, err := f.store.GetOrder(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, o.Status)

	out, err = f.rec.Apply(ctx, razorpayDelivery("evt_rzp_1", body))
	require.NoError(t, err)
	assert.Equal(t, webhook.Duplicate, out)
}
