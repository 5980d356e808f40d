package orders

import (
	"math"
	"time"
)

type Address struct {
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Status          Status      `json:"status"`
	TotalCents      int64       `json:"totalCents"`
	Currency        string      `json:"currency"`
	ShippingAddress Address     `json:"shippingAddress"`
	BillingAddress  Address     `json:"billingAddress"`
	PaymentStatus   string      `json:"paymentStatus"`
	PaymentID       string      `json:"paymentId,omitempty"`
	CancelReason    string      `json:"cancelReason,omitempty"`
	IdempotencyKey  string      `json:"-"`
	Items           []OrderItem `json:"items"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"orderId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
	VendorID   string `json:"vendorId"`
}

func (it OrderItem) SubtotalCents() int64 { return it.PriceCents * int64(it.Quantity) }

// ItemsTotal is the price-snapshot sum; it must always equal TotalCents.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += it.SubtotalCents()
	}
	return total
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationFinalized ReservationStatus = "FINALIZED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is the stock taken from a product at checkout, pending payment.
type Reservation struct {
	OrderID   string
	ProductID string
	Quantity  int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Filter narrows an order listing. Zero values mean "any".
type Filter struct {
	UserID string
	Status Status
	Page   int
	Limit  int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Offset from overflowing.
	MaxPage         = math.MaxInt32
)

// Normalize clamps paging to 1..MaxPage and 1..MaxPageSize.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

func (f Filter) Offset() int { return (f.Page - 1) * f.Limit }

type Page struct {
	Orders     []Order `json:"data"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
}

func NewPage(orders []Order, total int, f Filter) Page {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if orders == nil {
		orders = []Order{}
	}
	return Page{Orders: orders, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}
}
