package domain

import "time"

type BookingStatus string

const (
	BookingStatusAwaiting  BookingStatus = "awaiting_payment"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a reserved activity slot tied to a customer. Its ID doubles as
// the external reference sent to the payment gateway at charge creation and
// echoed back in webhook events.
type Booking struct {
	ID           string        `json:"id"`
	CustomerName string        `json:"customer_name"`
	Phone        string        `json:"phone"`
	Email        string        `json:"email"`
	Activity     string        `json:"activity"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	Value        float64       `json:"value"`
	Status       BookingStatus `json:"status"`
	PaidAt       *time.Time    `json:"paid_at,omitempty"`

	NotificationSent      bool       `json:"notification_sent"`
	NotificationSentAt    *time.Time `json:"notification_sent_at,omitempty"`
	NotificationMessage   *string    `json:"notification_message,omitempty"`
	NotificationRecipient *string    `json:"notification_recipient,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkPaid transitions the booking to paid. Re-applying it to an already
// paid booking is harmless; the webhook pipeline relies on that.
func (b *Booking) MarkPaid(now time.Time) {
	b.Status = BookingStatusPaid
	b.PaidAt = &now
	b.UpdatedAt = now
}

// MarkNotified records a successfully sent confirmation along with the
// rendered message and recipient for audit. Callers must only invoke this
// after the messaging gateway reported the send as successful.
func (b *Booking) MarkNotified(message, recipient string, now time.Time) {
	b.NotificationSent = true
	b.NotificationSentAt = &now
	b.NotificationMessage = &message
	b.NotificationRecipient = &recipient
	b.UpdatedAt = now
}
