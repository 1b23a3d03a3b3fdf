// internal/app/payment_service.go
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/subscription"
	"subscription_billing/internal/infra/events"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RecordPaymentInput is a validated request to record a payment.
// Amount positivity is checked by callers at the boundary.
type RecordPaymentInput struct {
	SubscriptionID int64
	Amount         decimal.Decimal
	PaymentDate    *time.Time // Defaults to today; any time part is dropped
	Method         string
	Notes          string
	SendWhatsApp   *bool // nil follows the client's consent
}

// RecordPaymentResult is returned for every committed payment, including when
// notifications failed.
type RecordPaymentResult struct {
	PaymentID       int64
	NextPaymentDate time.Time
	Status          subscription.Status
	EmailSent       bool
	WhatsAppSent    bool
	WhatsAppError   *string
}

// PaymentService records payments and advances subscription schedules.
type PaymentService struct {
	recorder    payment.Recorder
	paymentRepo payment.Repository
	notifier    PaymentNotifier
	events      EventPublisher // optional
	metrics     Metrics
	clock       Clock
	logger      *logrus.Entry
}

func NewPaymentService(
	recorder payment.Recorder,
	pr payment.Repository,
	notifier PaymentNotifier,
	publisher EventPublisher,
	m Metrics,
	clock Clock,
	logger *logrus.Entry,
) *PaymentService {
	return &PaymentService{
		recorder:    recorder,
		paymentRepo: pr,
		notifier:    notifier,
		events:      publisher,
		metrics:     m,
		clock:       clock,
		logger:      logger,
	}
}

// RecordPayment stores the payment, moves the subscription's due date forward
// by one billing cycle from its current due date and reactivates it, all in one
// transaction. Notifications run after commit and cannot undo the payment.
func (s *PaymentService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*RecordPaymentResult, error) {
	if in.SubscriptionID <= 0 {
		return nil, ErrInvalidSubscriptionID
	}

	paymentDate := s.clock.Today()
	if in.PaymentDate != nil {
		paymentDate = subscription.DateOnly(*in.PaymentDate)
	}

	log := s.logger.WithField("subscription_id", in.SubscriptionID)

	var (
		sub            *subscription.Subscription
		owner          *client.Client
		p              *payment.Payment
		previousStatus subscription.Status
	)
	err := s.recorder.RecordInTx(ctx, func(ctx context.Context, tx payment.Tx) error {
		var err error
		sub, owner, err = tx.LockSubscription(ctx, in.SubscriptionID)
		if err != nil {
			return err
		}
		if !sub.BillingCycle.Valid() {
			return fmt.Errorf("subscription %d has billing cycle %d: %w", sub.ID, sub.BillingCycle, ErrInvalidBillingCycle)
		}

		p = &payment.Payment{
			SubscriptionID: sub.ID,
			Amount:         in.Amount.Round(2),
			PaymentDate:    paymentDate,
			Method:         strings.TrimSpace(in.Method),
			Notes:          strings.TrimSpace(in.Notes),
		}
		if err := tx.Create(ctx, p); err != nil {
			return err
		}

		next := subscription.NextDueDate(sub.NextPaymentDate, sub.BillingCycle)
		if err := tx.UpdateSchedule(ctx, sub.ID, next, subscription.StatusActive); err != nil {
			return err
		}

		previousStatus = sub.Status
		sub.NextPaymentDate = next
		sub.Status = subscription.StatusActive
		return nil
	})
	if err != nil {
		s.metrics.PaymentFailed()
		log.WithError(err).Warn("Payment was not recorded")
		return nil, fmt.Errorf("failed to record payment for subscription %d: %w", in.SubscriptionID, err)
	}

	amount, _ := p.Amount.Float64()
	s.metrics.PaymentRecorded(string(previousStatus), strconv.Itoa(int(sub.BillingCycle)), amount)
	log.WithFields(logrus.Fields{
		"payment_id":        p.ID,
		"amount":            p.Amount.StringFixed(2),
		"previous_status":   previousStatus,
		"next_payment_date": sub.NextPaymentDate.Format(dateLayout),
	}).Info("Payment recorded")

	// The payment is committed; a cancelled request must not cut notifications short.
	notifyCtx := context.WithoutCancel(ctx)

	outcome := s.notifier.NotifyPaymentConfirmed(notifyCtx, PaymentNotice{
		Client:       owner,
		Subscription: sub,
		Payment:      p,
		SendWhatsApp: in.SendWhatsApp,
	})
	s.publishRecorded(notifyCtx, log, owner, sub, p, previousStatus)

	return &RecordPaymentResult{
		PaymentID:       p.ID,
		NextPaymentDate: sub.NextPaymentDate,
		Status:          sub.Status,
		EmailSent:       outcome.EmailSent,
		WhatsAppSent:    outcome.WhatsAppSent,
		WhatsAppError:   outcome.WhatsAppError,
	}, nil
}

func (s *PaymentService) publishRecorded(ctx context.Context, log *logrus.Entry, owner *client.Client, sub *subscription.Subscription, p *payment.Payment, previous subscription.Status) {
	if s.events == nil {
		return
	}
	evt := events.PaymentRecorded{
		PaymentID:       p.ID,
		SubscriptionID:  sub.ID,
		ClientID:        owner.ID,
		Amount:          p.Amount.StringFixed(2),
		PaymentDate:     p.PaymentDate.Format(dateLayout),
		NextPaymentDate: sub.NextPaymentDate.Format(dateLayout),
		PreviousStatus:  string(previous),
		RecordedAt:      s.clock.Now().UTC(),
	}
	if err := s.events.PublishPaymentRecorded(ctx, evt); err != nil {
		log.WithError(err).Warn("Failed to publish payment.recorded event")
	}
}

// ListPayments returns the payments of a subscription, newest first.
func (s *PaymentService) ListPayments(ctx context.Context, subscriptionID int64) ([]*payment.Payment, error) {
	return s.paymentRepo.ListBySubscription(ctx, subscriptionID)
}

// DeletePayment removes a payment record. It is an administrative override and
// does not move the subscription's due date back.
func (s *PaymentService) DeletePayment(ctx context.Context, id int64) error {
	if err := s.paymentRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("payment_id", id).Warn("Payment deleted by administrator")
	return nil
}
