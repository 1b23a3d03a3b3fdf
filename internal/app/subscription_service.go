package app

import (
	"context"
	"fmt"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/subscription"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CreateSubscriptionInput describes a new subscription.
type CreateSubscriptionInput struct {
	ClientID        int64
	Kind            subscription.Kind
	StartDate       time.Time
	EndDate         *time.Time
	BillingCycle    subscription.Cycle
	MonthlyAmount   decimal.Decimal
	NextPaymentDate *time.Time // Defaults to start date plus one billing cycle
}

// SubscriptionService manages subscriptions. Reads reconcile first so callers
// never see an active subscription that is already overdue.
type SubscriptionService struct {
	subRepo    subscription.Repository
	clientRepo client.Repository
	reconciler *Reconciler
	clock      Clock
	logger     *logrus.Entry
}

func NewSubscriptionService(sr subscription.Repository, cr client.Repository, reconciler *Reconciler, clock Clock, logger *logrus.Entry) *SubscriptionService {
	return &SubscriptionService{
		subRepo:    sr,
		clientRepo: cr,
		reconciler: reconciler,
		clock:      clock,
		logger:     logger,
	}
}

func (s *SubscriptionService) Create(ctx context.Context, in CreateSubscriptionInput) (*subscription.Subscription, error) {
	if !in.Kind.Valid() {
		return nil, ErrInvalidSubscriptionKind
	}
	if !in.BillingCycle.Valid() {
		return nil, ErrInvalidBillingCycle
	}
	if in.MonthlyAmount.IsNegative() {
		return nil, ErrInvalidMonthlyAmount
	}

	start := subscription.DateOnly(in.StartDate)
	var end *time.Time
	if in.EndDate != nil {
		e := subscription.DateOnly(*in.EndDate)
		if e.Before(start) {
			return nil, ErrInvalidDateRange
		}
		end = &e
	}

	next := subscription.NextDueDate(start, in.BillingCycle)
	if in.NextPaymentDate != nil {
		next = subscription.DateOnly(*in.NextPaymentDate)
		if !subscription.OnSchedule(start, next, in.BillingCycle) {
			return nil, ErrNextPaymentOffSchedule
		}
	}

	if _, err := s.clientRepo.GetByID(ctx, in.ClientID); err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		ClientID:        in.ClientID,
		Kind:            in.Kind,
		StartDate:       start,
		EndDate:         end,
		BillingCycle:    in.BillingCycle,
		MonthlyAmount:   in.MonthlyAmount.Round(2),
		Status:          subscription.StatusActive,
		NextPaymentDate: next,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id":   sub.ID,
		"client_id":         sub.ClientID,
		"next_payment_date": sub.NextPaymentDate.Format(dateLayout),
	}).Info("Subscription created")
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id int64) (*subscription.Subscription, error) {
	if id <= 0 {
		return nil, ErrInvalidSubscriptionID
	}
	s.reconcile(ctx)
	return s.subRepo.GetByID(ctx, id)
}

func (s *SubscriptionService) List(ctx context.Context, filter subscription.ListFilter) ([]*subscription.Subscription, error) {
	s.reconcile(ctx)
	return s.subRepo.List(ctx, filter)
}

// Due lists active and expired subscriptions that are due on or before today.
func (s *SubscriptionService) Due(ctx context.Context) ([]*subscription.Subscription, error) {
	subs, err := s.List(ctx, subscription.ListFilter{
		Statuses: []subscription.Status{subscription.StatusActive, subscription.StatusExpired},
	})
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	due := make([]*subscription.Subscription, 0, len(subs))
	for _, sub := range subs {
		if !sub.NextPaymentDate.After(today) {
			due = append(due, sub)
		}
	}
	return due, nil
}

// Stop pauses billing. Expired subscriptions can be stopped too.
func (s *SubscriptionService) Stop(ctx context.Context, id int64) (*subscription.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusStopped {
		return nil, ErrSubscriptionAlreadyStopped
	}
	return s.setStatus(ctx, sub, subscription.StatusStopped)
}

// Resume reactivates a stopped subscription without touching its due date.
// Expired subscriptions only come back through a payment.
func (s *SubscriptionService) Resume(ctx context.Context, id int64) (*subscription.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusStopped {
		return nil, ErrSubscriptionNotStopped
	}
	sub, err = s.setStatus(ctx, sub, subscription.StatusActive)
	if err != nil {
		return nil, err
	}
	// A resumed subscription may already be overdue.
	s.reconcile(ctx)
	return s.subRepo.GetByID(ctx, id)
}

func (s *SubscriptionService) setStatus(ctx context.Context, sub *subscription.Subscription, status subscription.Status) (*subscription.Subscription, error) {
	if err := s.subRepo.SetStatus(ctx, sub.ID, status); err != nil {
		return nil, fmt.Errorf("failed to set subscription %d to %s: %w", sub.ID, status, err)
	}
	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"from":            sub.Status,
		"to":              status,
	}).Info("Subscription status changed")
	sub.Status = status
	return sub, nil
}

func (s *SubscriptionService) reconcile(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		s.logger.WithError(err).Warn("Reconcile before read failed, serving stored statuses")
	}
}
