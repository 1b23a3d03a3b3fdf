package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subscription_billing/internal/domain/reminder"
)

var ErrReminderNotFound = fmt.Errorf("reminder not found")

// ErrReminderNotPending is returned when a reminder has already left the pending state.
var ErrReminderNotPending = fmt.Errorf("reminder is not pending")

type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

const reminderColumns = `id, client_id, message, channel, status, scheduled_at, sent_at, error, created_at`

func scanReminder(row interface{ Scan(...any) error }) (*reminder.Reminder, error) {
	rm := &reminder.Reminder{}
	var scheduledAt, sentAt sql.NullTime
	if err := row.Scan(&rm.ID, &rm.ClientID, &rm.Message, &rm.Channel, &rm.Status, &scheduledAt, &sentAt, &rm.Error, &rm.CreatedAt); err != nil {
		return nil, err
	}
	rm.ScheduledAt = timePtr(scheduledAt)
	rm.SentAt = timePtr(sentAt)
	return rm, nil
}

// Helper to scan multiple rows
func scanReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}

func (r *PostgresReminderRepository) Create(ctx context.Context, rm *reminder.Reminder) error {
	query := `INSERT INTO reminders (client_id, message, channel, status, scheduled_at, sent_at, error)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, rm.ClientID, rm.Message, rm.Channel, rm.Status,
		nullTime(rm.ScheduledAt), nullTime(rm.SentAt), rm.Error).Scan(&rm.ID, &rm.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrClientNotFound
		}
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) GetByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`
	rm, err := scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return rm, nil
}

func (r *PostgresReminderRepository) ListByClient(ctx context.Context, clientID int64) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE client_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders by client: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *PostgresReminderRepository) ListDue(ctx context.Context, now time.Time) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders
               WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
               ORDER BY scheduled_at ASC` // Process older ones first
	rows, err := r.db.QueryContext(ctx, query, reminder.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("error querying due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *PostgresReminderRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE reminders SET status = $1, sent_at = $2, error = '' WHERE id = $3 AND status = $4`
	return r.transition(ctx, id, query, reminder.StatusSent, sentAt, id, reminder.StatusPending)
}

func (r *PostgresReminderRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE reminders SET status = $1, error = $2 WHERE id = $3 AND status = $4`
	return r.transition(ctx, id, query, reminder.StatusFailed, reason, id, reminder.StatusPending)
}

func (r *PostgresReminderRepository) transition(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating reminder %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating reminder %d: %w", id, err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrReminderNotPending
	}
	return nil
}
