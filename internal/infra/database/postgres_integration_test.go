package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/reminder"
	"subscription_billing/internal/domain/subscription"

	"github.com/shopspring/decimal"
)

// These tests need a disposable database: TEST_DATABASE_URL=postgres://... go test ./internal/infra/database
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := NewPostgresConnection(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *sql.DB, status subscription.Status, cycle subscription.Cycle, due time.Time) (*client.Client, *subscription.Subscription) {
	t.Helper()
	ctx := context.Background()

	c := &client.Client{Name: "Integration " + t.Name(), Phone: "+1 555 0100", WhatsAppConsent: true}
	if err := NewPostgresClientRepository(db).Create(ctx, c); err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { _ = NewPostgresClientRepository(db).Delete(context.Background(), c.ID) })

	s := &subscription.Subscription{
		ClientID:        c.ID,
		Kind:            subscription.KindInternet,
		StartDate:       due.AddDate(0, -1, 0),
		BillingCycle:    cycle,
		MonthlyAmount:   decimal.RequireFromString("50.00"),
		Status:          status,
		NextPaymentDate: due,
	}
	if err := NewPostgresSubscriptionRepository(db).Create(ctx, s); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return c, s
}

func advance(ctx context.Context, repo *PostgresPaymentRepository, subID int64) error {
	return repo.RecordInTx(ctx, func(ctx context.Context, tx payment.Tx) error {
		s, _, err := tx.LockSubscription(ctx, subID)
		if err != nil {
			return err
		}
		p := &payment.Payment{SubscriptionID: s.ID, Amount: decimal.RequireFromString("50.00"), PaymentDate: subscription.DateOnly(time.Now())}
		if err := tx.Create(ctx, p); err != nil {
			return err
		}
		return tx.UpdateSchedule(ctx, s.ID, subscription.NextDueDate(s.NextPaymentDate, s.BillingCycle), subscription.StatusActive)
	})
}

func TestPostgres_ConcurrentPaymentsDoNotLoseUpdates(t *testing.T) {
	db := openTestDB(t)
	_, s := seed(t, db, subscription.StatusExpired, subscription.CycleMonthly, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	repo := NewPostgresPaymentRepository(db)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- advance(context.Background(), repo, s.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("payment failed: %v", err)
		}
	}

	got, err := NewPostgresSubscriptionRepository(db).GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if want := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC); !got.NextPaymentDate.Equal(want) || got.Status != subscription.StatusActive {
		t.Fatalf("expected active due %s, got %s due %s", want.Format("2006-01-02"), got.Status, got.NextPaymentDate.Format("2006-01-02"))
	}
	payments, _ := repo.ListBySubscription(context.Background(), s.ID)
	if len(payments) != workers {
		t.Fatalf("expected %d payments, got %d", workers, len(payments))
	}
}

func TestPostgres_FailedTransactionRollsBack(t *testing.T) {
	db := openTestDB(t)
	_, s := seed(t, db, subscription.StatusExpired, subscription.CycleMonthly, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	repo := NewPostgresPaymentRepository(db)
	boom := errors.New("boom")

	err := repo.RecordInTx(context.Background(), func(ctx context.Context, tx payment.Tx) error {
		if _, _, err := tx.LockSubscription(ctx, s.ID); err != nil {
			return err
		}
		if err := tx.Create(ctx, &payment.Payment{SubscriptionID: s.ID, Amount: decimal.NewFromInt(50), PaymentDate: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	payments, _ := repo.ListBySubscription(context.Background(), s.ID)
	if len(payments) != 0 {
		t.Fatalf("expected rollback, found %d payments", len(payments))
	}

	err = repo.RecordInTx(context.Background(), func(ctx context.Context, tx payment.Tx) error {
		_, _, err := tx.LockSubscription(ctx, -1)
		return err
	})
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestPostgres_ExpireOverdue(t *testing.T) {
	db := openTestDB(t)
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, overdue := seed(t, db, subscription.StatusActive, subscription.CycleMonthly, today.AddDate(0, 0, -1))
	_, dueToday := seed(t, db, subscription.StatusActive, subscription.CycleMonthly, today)
	repo := NewPostgresSubscriptionRepository(db)

	ids, err := repo.ExpireOverdue(context.Background(), today)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if !containsID(ids, overdue.ID) || containsID(ids, dueToday.ID) {
		t.Fatalf("unexpected expired ids %v", ids)
	}

	again, err := repo.ExpireOverdue(context.Background(), today)
	if err != nil {
		t.Fatalf("second ExpireOverdue: %v", err)
	}
	if containsID(again, overdue.ID) {
		t.Fatal("second run must not touch already expired subscriptions")
	}
}

func TestPostgres_ReminderLeavesPendingOnce(t *testing.T) {
	db := openTestDB(t)
	c, _ := seed(t, db, subscription.StatusActive, subscription.CycleMonthly, time.Now())
	repo := NewPostgresReminderRepository(db)
	ctx := context.Background()

	rm := &reminder.Reminder{ClientID: c.ID, Message: "hi", Channel: reminder.ChannelWhatsApp, Status: reminder.StatusPending}
	if err := repo.Create(ctx, rm); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.MarkFailed(ctx, rm.ID, "relay down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := repo.MarkSent(ctx, rm.ID, time.Now()); !errors.Is(err, ErrReminderNotPending) {
		t.Fatalf("expected ErrReminderNotPending, got %v", err)
	}

	got, err := repo.GetByID(ctx, rm.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != reminder.StatusFailed || got.Error != "relay down" {
		t.Fatalf("unexpected reminder %+v", got)
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
