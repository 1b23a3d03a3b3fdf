package client

import "context"

// Repository defines the operations for persisting and retrieving Client entities.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context) ([]*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id int64) error // Cascades to subscriptions, payments and reminders
}
