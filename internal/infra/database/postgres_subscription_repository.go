package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"subscription_billing/internal/domain/subscription"

	"github.com/lib/pq"
)

var ErrSubscriptionNotFound = fmt.Errorf("subscription not found")

type PostgresSubscriptionRepository struct {
	db *sql.DB
}

func NewPostgresSubscriptionRepository(db *sql.DB) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db}
}

const subscriptionColumns = `id, client_id, kind, start_date, end_date, billing_cycle, monthly_amount, status, next_payment_date, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*subscription.Subscription, error) {
	s := &subscription.Subscription{}
	var endDate sql.NullTime
	err := row.Scan(&s.ID, &s.ClientID, &s.Kind, &s.StartDate, &endDate, &s.BillingCycle,
		&s.MonthlyAmount, &s.Status, &s.NextPaymentDate, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	// DATE columns carry no zone; keep them as calendar dates.
	s.StartDate = subscription.DateOnly(s.StartDate)
	s.NextPaymentDate = subscription.DateOnly(s.NextPaymentDate)
	if endDate.Valid {
		d := subscription.DateOnly(endDate.Time)
		s.EndDate = &d
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	query := `INSERT INTO subscriptions (client_id, kind, start_date, end_date, billing_cycle, monthly_amount, status, next_payment_date)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, s.ClientID, s.Kind, dateParam(s.StartDate), nullDateParam(s.EndDate),
		s.BillingCycle, s.MonthlyAmount, s.Status, dateParam(s.NextPaymentDate)).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrClientNotFound
		}
		return fmt.Errorf("error creating subscription: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("error getting subscription by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresSubscriptionRepository) List(ctx context.Context, filter subscription.ListFilter) ([]*subscription.Subscription, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d::varchar[])", len(args)))
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY next_payment_date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*subscription.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}

func (r *PostgresSubscriptionRepository) SetStatus(ctx context.Context, id int64, status subscription.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("error updating subscription status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error updating subscription status: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *PostgresSubscriptionRepository) ExpireOverdue(ctx context.Context, today time.Time) ([]int64, error) {
	query := `UPDATE subscriptions
               SET status = $1, updated_at = NOW()
               WHERE status = $2 AND next_payment_date < $3
               RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, subscription.StatusExpired, subscription.StatusActive, dateParam(subscription.DateOnly(today)))
	if err != nil {
		return nil, fmt.Errorf("error expiring overdue subscriptions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning expired subscription id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expired subscriptions: %w", err)
	}
	return ids, nil
}
