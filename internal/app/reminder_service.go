package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

type CreateReminderInput struct {
	ClientID    int64
	Message     string
	Channel     reminder.Channel
	ScheduledAt *time.Time // nil schedules for immediate dispatch
}

// ReminderService lets staff schedule manual reminders. Delivery happens in
// NotificationService.DispatchDueReminders.
type ReminderService struct {
	reminderRepo reminder.Repository
	clientRepo   client.Repository
	clock        Clock
	logger       *logrus.Entry
}

func NewReminderService(rr reminder.Repository, cr client.Repository, clock Clock, logger *logrus.Entry) *ReminderService {
	return &ReminderService{reminderRepo: rr, clientRepo: cr, clock: clock, logger: logger}
}

func (s *ReminderService) Create(ctx context.Context, in CreateReminderInput) (*reminder.Reminder, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, ErrReminderMessageRequired
	}
	if in.Channel == "" {
		in.Channel = reminder.ChannelSystem
	}
	if !in.Channel.Valid() {
		return nil, ErrInvalidReminderChannel
	}
	if _, err := s.clientRepo.GetByID(ctx, in.ClientID); err != nil {
		return nil, err
	}

	scheduled := s.clock.Now().UTC()
	if in.ScheduledAt != nil {
		scheduled = in.ScheduledAt.UTC()
	}

	rm := &reminder.Reminder{
		ClientID:    in.ClientID,
		Message:     msg,
		Channel:     in.Channel,
		Status:      reminder.StatusPending,
		ScheduledAt: &scheduled,
	}
	if err := s.reminderRepo.Create(ctx, rm); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"reminder_id":  rm.ID,
		"client_id":    rm.ClientID,
		"channel":      rm.Channel,
		"scheduled_at": scheduled,
	}).Info("Reminder scheduled")
	return rm, nil
}

func (s *ReminderService) ListByClient(ctx context.Context, clientID int64) ([]*reminder.Reminder, error) {
	if _, err := s.clientRepo.GetByID(ctx, clientID); err != nil {
		return nil, err
	}
	return s.reminderRepo.ListByClient(ctx, clientID)
}
