// internal/domain/subscription/repository.go
package subscription

import (
	"context"
	"time"
)

// ListFilter narrows a subscription listing. Zero values mean "any".
type ListFilter struct {
	ClientID int64
	Statuses []Status
}

// Repository defines operations for persisting Subscription entities.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id int64) (*Subscription, error)
	List(ctx context.Context, filter ListFilter) ([]*Subscription, error)
	SetStatus(ctx context.Context, id int64, status Status) error

	// ExpireOverdue flips every active subscription due before today to expired
	// and returns the IDs it changed.
	ExpireOverdue(ctx context.Context, today time.Time) ([]int64, error)
}
