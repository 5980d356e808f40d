package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// validNext is the whole lifecycle graph. Anything not listed is rejected,
// including self-transitions, so a replayed trigger never applies twice.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusRefunded: true},
	StatusShipped:   {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered: {StatusRefunded: true},
	StatusCancelled: {},
	StatusRefunded:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// Cancel reasons surfaced on the order so a failed payment is never a silent PENDING.
const (
	ReasonPaymentFailed       = "payment_failed"
	ReasonPaymentCancelled    = "payment_cancelled"
	ReasonPaymentIntentFailed = "payment_intent_failed"
	ReasonReservationExpired  = "reservation_expired"
	ReasonBuyerCancelled      = "buyer_cancelled"
	ReasonOperatorCancelled   = "operator_cancelled"
)
