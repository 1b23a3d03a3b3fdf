// internal/domain/payment/repository.go
package payment

import (
	"context"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/subscription"
)

// Repository defines read and administrative operations on payments.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]*Payment, error)
	Delete(ctx context.Context, id int64) error // Administrative override, not part of the payment workflow
}

// Recorder runs fn inside a single database transaction. The transaction is
// committed only if fn returns nil.
type Recorder interface {
	RecordInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes a payment is allowed to make atomically.
type Tx interface {
	// LockSubscription loads the subscription and its owning client and holds a
	// row lock on the subscription until the transaction ends.
	LockSubscription(ctx context.Context, subscriptionID int64) (*subscription.Subscription, *client.Client, error)
	Create(ctx context.Context, p *Payment) error
	UpdateSchedule(ctx context.Context, subscriptionID int64, nextPaymentDate time.Time, status subscription.Status) error
}
