// internal/domain/payment/payment.go
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an immutable record of money received for a subscription.
// Corresponds to the 'payments' table.
type Payment struct {
	ID             int64
	SubscriptionID int64 // Foreign Key to subscriptions.id
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Method         string // e.g. cash, transfer, card
	Notes          string
	CreatedAt      time.Time
}
