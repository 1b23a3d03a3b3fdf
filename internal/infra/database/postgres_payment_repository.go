package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/subscription"
)

var ErrPaymentNotFound = fmt.Errorf("payment not found")

type PostgresPaymentRepository struct {
	db *sql.DB
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

const paymentColumns = `id, subscription_id, amount, payment_date, payment_method, notes, created_at`

func scanPayment(row interface{ Scan(...any) error }) (*payment.Payment, error) {
	p := &payment.Payment{}
	if err := row.Scan(&p.ID, &p.SubscriptionID, &p.Amount, &p.PaymentDate, &p.Method, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.PaymentDate = subscription.DateOnly(p.PaymentDate)
	return p, nil
}

func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("error getting payment by ID: %w", err)
	}
	return p, nil
}

func (r *PostgresPaymentRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
               WHERE subscription_id = $1 ORDER BY payment_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("error listing payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*payment.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *PostgresPaymentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting payment: %w", err)
	}
	if n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// RecordInTx runs fn in a read-committed transaction. Rows locked through
// tx.LockSubscription stay locked until commit or rollback.
func (r *PostgresPaymentRepository) RecordInTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	txn, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin payment transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := fn(ctx, &postgresPaymentTx{tx: txn}); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment transaction: %w", err)
	}
	return nil
}

type postgresPaymentTx struct {
	tx *sql.Tx
}

func (t *postgresPaymentTx) LockSubscription(ctx context.Context, subscriptionID int64) (*subscription.Subscription, *client.Client, error) {
	// FOR UPDATE OF s locks only the subscription row; the client row is read, not locked.
	query := `SELECT s.id, s.client_id, s.kind, s.start_date, s.end_date, s.billing_cycle, s.monthly_amount,
                     s.status, s.next_payment_date, s.created_at, s.updated_at,
                     c.id, c.name, c.phone, c.email, c.address, c.whatsapp_consent, c.created_at, c.updated_at
               FROM subscriptions s
               JOIN clients c ON c.id = s.client_id
               WHERE s.id = $1
               FOR UPDATE OF s`

	s := &subscription.Subscription{}
	c := &client.Client{}
	var endDate sql.NullTime
	err := t.tx.QueryRowContext(ctx, query, subscriptionID).Scan(
		&s.ID, &s.ClientID, &s.Kind, &s.StartDate, &endDate, &s.BillingCycle, &s.MonthlyAmount,
		&s.Status, &s.NextPaymentDate, &s.CreatedAt, &s.UpdatedAt,
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.WhatsAppConsent, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, ErrSubscriptionNotFound
		}
		return nil, nil, fmt.Errorf("error locking subscription: %w", err)
	}
	s.StartDate = subscription.DateOnly(s.StartDate)
	s.NextPaymentDate = subscription.DateOnly(s.NextPaymentDate)
	if endDate.Valid {
		d := subscription.DateOnly(endDate.Time)
		s.EndDate = &d
	}
	return s, c, nil
}

func (t *postgresPaymentTx) Create(ctx context.Context, p *payment.Payment) error {
	query := `INSERT INTO payments (subscription_id, amount, payment_date, payment_method, notes)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at`
	err := t.tx.QueryRowContext(ctx, query, p.SubscriptionID, p.Amount, dateParam(p.PaymentDate), p.Method, p.Notes).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrSubscriptionNotFound
		}
		return fmt.Errorf("error creating payment: %w", err)
	}
	return nil
}

func (t *postgresPaymentTx) UpdateSchedule(ctx context.Context, subscriptionID int64, nextPaymentDate time.Time, status subscription.Status) error {
	query := `UPDATE subscriptions
               SET next_payment_date = $1, status = $2, updated_at = NOW()
               WHERE id = $3`
	res, err := t.tx.ExecContext(ctx, query, dateParam(nextPaymentDate), status, subscriptionID)
	if err != nil {
		return fmt.Errorf("error updating subscription schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating subscription schedule: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
