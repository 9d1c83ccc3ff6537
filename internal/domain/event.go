package domain

// Event type tags and payment fields as delivered by the payment gateway.
// The two recognized tags are matched case-sensitively.
const (
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentReceived  = "PAYMENT_RECEIVED"

	PaymentStatusConfirmed = "CONFIRMED"
	PaymentStatusReceived  = "RECEIVED"

	BillingTypePix = "PIX"
)

// Payment is the payment sub-object of a gateway webhook payload.
// Every field is optional on the wire; absence is handled downstream,
// not at the HTTP boundary.
type Payment struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	BillingType       string  `json:"billingType"`
	ExternalReference string  `json:"externalReference"`
	Value             float64 `json:"value"`
}

// InboundEvent is the raw webhook payload announcing a payment state change.
// It lives only in the in-memory task queue and is never persisted.
type InboundEvent struct {
	Event   string   `json:"event"`
	Payment *Payment `json:"payment"`
}

// Reference returns the booking identifier echoed back by the gateway,
// or "" when the payload carries none.
func (e *InboundEvent) Reference() string {
	if e.Payment == nil {
		return ""
	}
	return e.Payment.ExternalReference
}

// PaymentID returns the gateway's own id for the payment, or "".
func (e *InboundEvent) PaymentID() string {
	if e.Payment == nil {
		return ""
	}
	return e.Payment.ID
}
