package app

import (
	"context"
	"fmt"

	"subscription_billing/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

// Reconciler expires subscriptions whose due date has passed.
type Reconciler struct {
	subRepo subscription.Repository
	metrics Metrics
	clock   Clock
	logger  *logrus.Entry
}

func NewReconciler(sr subscription.Repository, m Metrics, clock Clock, logger *logrus.Entry) *Reconciler {
	return &Reconciler{subRepo: sr, metrics: m, clock: clock, logger: logger}
}

// Reconcile marks every active subscription with a due date before today as
// expired and returns how many changed. Running it twice on the same day
// changes nothing the second time.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	today := r.clock.Today()

	ids, err := r.subRepo.ExpireOverdue(ctx, today)
	if err != nil {
		r.metrics.ReconcileFailed()
		return 0, fmt.Errorf("failed to expire overdue subscriptions: %w", err)
	}

	r.metrics.SubscriptionsExpired(len(ids))
	if len(ids) > 0 {
		r.logger.WithFields(logrus.Fields{
			"count":            len(ids),
			"subscription_ids": ids,
			"today":            today.Format(dateLayout),
		}).Info("Expired overdue subscriptions")
	}
	return len(ids), nil
}
