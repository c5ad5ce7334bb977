package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLedger is the processed-notification idempotency ledger.
// The primary key on processed_notifications.id makes Record an
// atomic insert-if-absent.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Seen(ctx context.Context, notificationID string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_notifications WHERE id = $1)`,
		notificationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return exists, nil
}

// Record marks a notification processed. Recording an id that a
// concurrent handler already wrote is success, not an error.
func (l *PostgresLedger) Record(ctx context.Context, notificationID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_notifications (id, processed_at) VALUES ($1, $2)`,
		notificationID, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}
