package payments

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// SUCCEEDED -> REFUNDED is the only move out of a terminal state.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusSucceeded: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusSucceeded: true, StatusFailed: true, StatusCancelled: true},
	StatusSucceeded:  {StatusRefunded: true},
	StatusFailed:     {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type Provider string

const (
	ProviderStripe   Provider = "STRIPE"
	ProviderRazorpay Provider = "RAZORPAY"
)

func (p Provider) Valid() bool {
	return p == ProviderStripe || p == ProviderRazorpay
}

type Method string

const (
	MethodCard       Method = "CARD"
	MethodUPI        Method = "UPI"
	MethodNetBanking Method = "NET_BANKING"
	MethodWallet     Method = "WALLET"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodUPI, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

// Payment is the one-per-order record of a provider payment intent.
type Payment struct {
	ID                string          `json:"id"`
	OrderID           string          `json:"orderId"`
	AmountCents       int64           `json:"amountCents"`
	Currency          string          `json:"currency"`
	Provider          Provider        `json:"provider"`
	Method            Method          `json:"method"`
	Status            Status          `json:"status"`
	ProviderPaymentID string          `json:"providerPaymentId,omitempty"`
	ClientSecret      string          `json:"-"`
	ProviderResponse  json.RawMessage `json:"-"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Intent is what the buyer needs to complete payment out-of-band.
type Intent struct {
	PaymentID         string   `json:"paymentId"`
	Provider          Provider `json:"provider"`
	ProviderPaymentID string   `json:"providerPaymentId"`
	ClientSecret      string   `json:"clientSecret,omitempty"`
	AmountCents       int64    `json:"amountCents"`
	Currency          string   `json:"currency"`
	Status            Status   `json:"status"`
}

func (p *Payment) Intent() Intent {
	return Intent{
		PaymentID:         p.ID,
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		ClientSecret:      p.ClientSecret,
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		Status:            p.Status,
	}
}
