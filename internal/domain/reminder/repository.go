package reminder

import (
	"context"
	"time"
)

// Repository defines operations for Reminder entities.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id int64) (*Reminder, error)
	ListByClient(ctx context.Context, clientID int64) ([]*Reminder, error)
	// ListDue fetches pending reminders whose scheduled time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*Reminder, error)

	// MarkSent and MarkFailed only transition reminders that are still pending.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}
