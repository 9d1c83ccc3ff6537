package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
)

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	const query = `
		SELECT id, customer_name, phone, email, activity, activity_date, activity_time,
		       value, status, paid_at,
		       notification_sent, notification_sent_at, notification_message, notification_recipient,
		       created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	var b domain.Booking
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.CustomerName,
		&b.Phone,
		&b.Email,
		&b.Activity,
		&b.Date,
		&b.Time,
		&b.Value,
		&b.Status,
		&b.PaidAt,
		&b.NotificationSent,
		&b.NotificationSentAt,
		&b.NotificationMessage,
		&b.NotificationRecipient,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdatePayment persists the paid transition. Deliberately unconditional:
// re-setting paid/paid_at on an already-paid booking is a harmless no-op
// from the pipeline's point of view.
func (r *BookingRepository) UpdatePayment(ctx context.Context, booking *domain.Booking) error {
	const query = `
		UPDATE bookings
		SET status = $2, paid_at = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.Status,
		booking.PaidAt,
		booking.UpdatedAt,
	)
	return err
}

func (r *BookingRepository) UpdateNotification(ctx context.Context, booking *domain.Booking) error {
	const query = `
		UPDATE bookings
		SET notification_sent = $2, notification_sent_at = $3,
		    notification_message = $4, notification_recipient = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.NotificationSent,
		booking.NotificationSentAt,
		booking.NotificationMessage,
		booking.NotificationRecipient,
		booking.UpdatedAt,
	)
	return err
}
