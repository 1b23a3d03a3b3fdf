package client

import (
	"strings"
	"time"
)

// Client is a customer of the business. Subscriptions and reminders belong to a client.
type Client struct {
	ID              int64
	Name            string
	Phone           string
	Email           string
	Address         string
	WhatsAppConsent bool // Allowed to receive automated WhatsApp messages
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPhone reports whether the client has a phone number with at least one digit.
func (c *Client) HasPhone() bool {
	return strings.IndexFunc(c.Phone, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}
