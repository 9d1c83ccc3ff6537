package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TechLoui/Vagafogo-sub000/internal/domain"
)

type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// GetNotificationSettings reads the single settings row. A missing row
// means notifications were never configured and is treated as disabled,
// not as an error.
func (r *SettingsRepository) GetNotificationSettings(ctx context.Context) (*domain.NotificationSettings, error) {
	const query = `
		SELECT enabled, message_template
		FROM notification_settings
		ORDER BY id
		LIMIT 1
	`

	var s domain.NotificationSettings
	err := r.pool.QueryRow(ctx, query).Scan(&s.Enabled, &s.MessageTemplate)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotificationSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
