package repository

import (
	"context"

	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
)

// BookingRepository is the typed adapter over the booking collection.
// GetByID returns domain.ErrNotFound when no booking matches.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdatePayment(ctx context.Context, booking *domain.Booking) error
	UpdateNotification(ctx context.Context, booking *domain.Booking) error
}

// SettingsRepository reads the notification configuration. The webhook
// pipeline never writes it.
type SettingsRepository interface {
	GetNotificationSettings(ctx context.Context) (*domain.NotificationSettings, error)
}
