// Package webhook turns inbound payment-gateway events into booking state
// transitions and confirmation messages.
package webhook

import "github.com/TechLoui/Vagafogo-sub000/internal/domain"

// ShouldProcess decides whether a gateway event is a payment confirmation
// worth acting on. Card payments confirm via PAYMENT_CONFIRMED/CONFIRMED;
// PIX settles instantly, so PAYMENT_RECEIVED/RECEIVED counts as confirmed
// for PIX only. Everything else (overdue, refunds, missing payment data,
// unknown tags) is ignored.
//
// Pure and total: no side effects, never panics.
func ShouldProcess(eventType string, payment *domain.Payment) bool {
	if payment == nil {
		return false
	}

	switch eventType {
	case domain.EventPaymentConfirmed:
		return payment.Status == domain.PaymentStatusConfirmed
	case domain.EventPaymentReceived:
		return payment.BillingType == domain.BillingTypePix &&
			payment.Status == domain.PaymentStatusReceived
	}
	return false
}
