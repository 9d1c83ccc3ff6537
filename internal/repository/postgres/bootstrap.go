// Package postgres implements the repository interfaces on PostgreSQL
// via jackc/pgx. It is the storage adapter behind the booking store; the
// webhook pipeline only ever sees the repository interfaces.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Bootstrap creates the tables if they do not exist yet. Kept as plain DDL
// rather than a migration tool; the schema is two tables.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS bookings (
			id                     TEXT PRIMARY KEY,
			customer_name          TEXT NOT NULL,
			phone                  TEXT NOT NULL DEFAULT '',
			email                  TEXT NOT NULL DEFAULT '',
			activity               TEXT NOT NULL DEFAULT '',
			activity_date          TEXT NOT NULL DEFAULT '',
			activity_time          TEXT NOT NULL DEFAULT '',
			value                  NUMERIC(10,2) NOT NULL DEFAULT 0,
			status                 TEXT NOT NULL DEFAULT 'awaiting_payment',
			paid_at                TIMESTAMPTZ,
			notification_sent      BOOLEAN NOT NULL DEFAULT FALSE,
			notification_sent_at   TIMESTAMPTZ,
			notification_message   TEXT,
			notification_recipient TEXT,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS notification_settings (
			id               SMALLINT PRIMARY KEY DEFAULT 1,
			enabled          BOOLEAN NOT NULL DEFAULT FALSE,
			message_template TEXT NOT NULL DEFAULT ''
		);
	`

	_, err := pool.Exec(ctx, ddl)
	return err
}
