// internal/domain/reminder/reminder.go
package reminder

import "time"

// Channel says how a reminder is delivered.
type Channel string

const (
	ChannelSystem   Channel = "system"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	return c == ChannelSystem || c == ChannelWhatsApp
}

// Status of a reminder. A reminder leaves pending exactly once.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Reminder is an outbound message to a client.
type Reminder struct {
	ID          int64
	ClientID    int64
	Message     string
	Channel     Channel
	Status      Status
	ScheduledAt *time.Time
	SentAt      *time.Time
	Error       string // Delivery error for failed reminders
	CreatedAt   time.Time
}
