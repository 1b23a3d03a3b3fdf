package app

import (
	"context"
	"fmt"
	"strings"

	"subscription_billing/internal/domain/client"

	"github.com/sirupsen/logrus"
)

type ClientInput struct {
	Name            string
	Phone           string
	Email           string
	Address         string
	WhatsAppConsent bool
}

// ClientService is the staff-facing CRUD for clients.
type ClientService struct {
	clientRepo client.Repository
	logger     *logrus.Entry
}

func NewClientService(cr client.Repository, logger *logrus.Entry) *ClientService {
	return &ClientService{clientRepo: cr, logger: logger}
}

func (s *ClientService) Create(ctx context.Context, in ClientInput) (*client.Client, error) {
	c, err := buildClient(in)
	if err != nil {
		return nil, err
	}
	if err := s.clientRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	s.logger.WithField("client_id", c.ID).Info("Client created")
	return c, nil
}

func (s *ClientService) Get(ctx context.Context, id int64) (*client.Client, error) {
	return s.clientRepo.GetByID(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]*client.Client, error) {
	return s.clientRepo.List(ctx)
}

func (s *ClientService) Update(ctx context.Context, id int64, in ClientInput) (*client.Client, error) {
	c, err := buildClient(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	if err := s.clientRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.clientRepo.GetByID(ctx, id)
}

// Delete removes the client together with its subscriptions, payments and reminders.
func (s *ClientService) Delete(ctx context.Context, id int64) error {
	if err := s.clientRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("client_id", id).Warn("Client deleted")
	return nil
}

func buildClient(in ClientInput) (*client.Client, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrClientNameRequired
	}
	return &client.Client{
		Name:            name,
		Phone:           strings.TrimSpace(in.Phone),
		Email:           strings.TrimSpace(in.Email),
		Address:         strings.TrimSpace(in.Address),
		WhatsAppConsent: in.WhatsAppConsent,
	}, nil
}
