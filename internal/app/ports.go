package app

import (
	"context"
	"time"

	"subscription_billing/internal/domain/subscription"
	"subscription_billing/internal/infra/events"

	"gopkg.in/telebot.v3"
)

// Mailer sends a plain-text e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// WhatsAppSender delivers a text message through the WhatsApp relay.
type WhatsAppSender interface {
	Send(ctx context.Context, phone, message string) error
}

// ChatSender sends a Telegram message. Used for manager alerts.
type ChatSender interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}

// EventPublisher publishes domain events after commit.
type EventPublisher interface {
	PublishPaymentRecorded(ctx context.Context, evt events.PaymentRecorded) error
}

// Metrics is the subset of counters the services record.
type Metrics interface {
	PaymentRecorded(previousStatus, billingCycle string, amount float64)
	PaymentFailed()
	Notification(channel, outcome string)
	SubscriptionsExpired(n int)
	ReconcileFailed()
}

// Clock tells the services what "today" is in the business calendar.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock uses the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	return Clock{Now: time.Now, Location: loc}
}

// Today is the current calendar date in the clock's location.
func (c Clock) Today() time.Time {
	now := c.Now()
	if c.Location != nil {
		now = now.In(c.Location)
	}
	return subscription.DateOnly(now)
}
