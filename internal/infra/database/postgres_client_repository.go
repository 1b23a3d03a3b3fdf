package database

import (
	"context"
	"database/sql"
	"fmt"

	"subscription_billing/internal/domain/client"
)

// Custom errors
var ErrClientNotFound = fmt.Errorf("client not found")

type PostgresClientRepository struct {
	db *sql.DB
}

func NewPostgresClientRepository(db *sql.DB) *PostgresClientRepository {
	return &PostgresClientRepository{db: db}
}

const clientColumns = `id, name, phone, email, address, whatsapp_consent, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*client.Client, error) {
	c := &client.Client{}
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.WhatsAppConsent, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PostgresClientRepository) Create(ctx context.Context, c *client.Client) error {
	query := `INSERT INTO clients (name, phone, email, address, whatsapp_consent)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, c.Name, c.Phone, c.Email, c.Address, c.WhatsAppConsent).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating client: %w", err)
	}
	return nil
}

func (r *PostgresClientRepository) GetByID(ctx context.Context, id int64) (*client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	c, err := scanClient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("error getting client by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresClientRepository) List(ctx context.Context) ([]*client.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*client.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning client: %w", err)
		}
		clients = append(clients, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

func (r *PostgresClientRepository) Update(ctx context.Context, c *client.Client) error {
	query := `UPDATE clients
               SET name = $1, phone = $2, email = $3, address = $4, whatsapp_consent = $5, updated_at = NOW()
               WHERE id = $6
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, c.Name, c.Phone, c.Email, c.Address, c.WhatsAppConsent, c.ID).Scan(&c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrClientNotFound
		}
		return fmt.Errorf("error updating client: %w", err)
	}
	return nil
}

func (r *PostgresClientRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting client: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error deleting client: %w", err)
	}
	if n == 0 {
		return ErrClientNotFound
	}
	return nil
}
