// internal/domain/subscription/subscription.go
package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is a recurring service a client pays for.
// Corresponds to the 'subscriptions' table.
type Subscription struct {
	ID              int64
	ClientID        int64 // Foreign Key to clients.id
	Kind            Kind
	StartDate       time.Time
	EndDate         *time.Time
	BillingCycle    Cycle
	MonthlyAmount   decimal.Decimal
	Status          Status
	NextPaymentDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOverdue reports whether an active subscription has passed its due date.
func (s *Subscription) IsOverdue(today time.Time) bool {
	return s.Status == StatusActive && s.NextPaymentDate.Before(DateOnly(today))
}

// CycleAmount is what one payment for a full billing cycle is expected to be.
func (s *Subscription) CycleAmount() decimal.Decimal {
	return s.MonthlyAmount.Mul(decimal.NewFromInt(int64(s.BillingCycle))).Round(2)
}
