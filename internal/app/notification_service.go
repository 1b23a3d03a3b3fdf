// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"strings"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/reminder"
	"subscription_billing/internal/domain/subscription"
	"subscription_billing/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// Notification channel labels.
const (
	channelEmail    = "email"
	channelWhatsApp = "whatsapp"
	channelTelegram = "telegram"
	channelSystem   = "system"
)

// PaymentNotice is everything needed to confirm a payment to a client.
type PaymentNotice struct {
	Client       *client.Client
	Subscription *subscription.Subscription // State after the payment was applied
	Payment      *payment.Payment
	SendWhatsApp *bool // nil means "follow the client's consent"
}

// NotificationOutcome reports what happened on each channel. Failures here
// never affect the payment itself.
type NotificationOutcome struct {
	EmailSent     bool
	WhatsAppSent  bool
	WhatsAppError *string
	ReminderID    int64 // WhatsApp confirmation reminder, 0 if none was created
}

// PaymentNotifier is implemented by NotificationService.
type PaymentNotifier interface {
	NotifyPaymentConfirmed(ctx context.Context, notice PaymentNotice) NotificationOutcome
}

// NotificationService delivers messages to clients and staff.
type NotificationService struct {
	reminderRepo  reminder.Repository
	clientRepo    client.Repository
	mailer        Mailer
	whatsapp      WhatsAppSender
	chat          ChatSender // optional
	managerChatID int64
	metrics       Metrics
	clock         Clock
	logger        *logrus.Entry
}

func NewNotificationService(
	rr reminder.Repository,
	cr client.Repository,
	mailer Mailer,
	whatsapp WhatsAppSender,
	chat ChatSender,
	managerChatID int64,
	m Metrics,
	clock Clock,
	logger *logrus.Entry,
) *NotificationService {
	return &NotificationService{
		reminderRepo:  rr,
		clientRepo:    cr,
		mailer:        mailer,
		whatsapp:      whatsapp,
		chat:          chat,
		managerChatID: managerChatID,
		metrics:       m,
		clock:         clock,
		logger:        logger,
	}
}

// ShouldSendWhatsApp decides whether a WhatsApp confirmation may be sent.
// Consent is an unconditional gate: an explicit request cannot override it.
func ShouldSendWhatsApp(c *client.Client, requested *bool) bool {
	if c == nil || !c.WhatsAppConsent || !c.HasPhone() {
		return false
	}
	return requested == nil || *requested
}

// NotifyPaymentConfirmed sends the e-mail confirmation, the WhatsApp
// confirmation when allowed, and the manager alert. Every channel is
// independent and best-effort.
func (s *NotificationService) NotifyPaymentConfirmed(ctx context.Context, notice PaymentNotice) NotificationOutcome {
	log := s.logger.WithFields(logrus.Fields{
		"client_id":       notice.Client.ID,
		"subscription_id": notice.Subscription.ID,
		"payment_id":      notice.Payment.ID,
	})

	var outcome NotificationOutcome
	outcome.EmailSent = s.sendPaymentEmail(ctx, log, notice)

	if ShouldSendWhatsApp(notice.Client, notice.SendWhatsApp) {
		outcome.ReminderID, outcome.WhatsAppError = s.sendTrackedWhatsApp(ctx, log, notice.Client, paymentWhatsAppText(notice))
		outcome.WhatsAppSent = outcome.WhatsAppError == nil
	} else {
		log.WithFields(logrus.Fields{
			"consent":   notice.Client.WhatsAppConsent,
			"has_phone": notice.Client.HasPhone(),
			"requested": notice.SendWhatsApp,
		}).Debug("WhatsApp confirmation not sent")
		s.metrics.Notification(channelWhatsApp, metrics.OutcomeSkipped)
	}

	s.alertManager(log, notice)
	return outcome
}

func (s *NotificationService) sendPaymentEmail(ctx context.Context, log *logrus.Entry, notice PaymentNotice) bool {
	if strings.TrimSpace(notice.Client.Email) == "" {
		s.metrics.Notification(channelEmail, metrics.OutcomeSkipped)
		return false
	}
	subject, body := paymentEmail(notice)
	if err := s.mailer.Send(ctx, notice.Client.Email, subject, body); err != nil {
		log.WithError(err).Warn("Payment confirmation e-mail failed")
		s.metrics.Notification(channelEmail, metrics.OutcomeFailed)
		return false
	}
	s.metrics.Notification(channelEmail, metrics.OutcomeSent)
	return true
}

// sendTrackedWhatsApp records a pending reminder, calls the relay, then moves
// the reminder to sent or failed. It returns the reminder ID and the delivery
// error message, if any.
func (s *NotificationService) sendTrackedWhatsApp(ctx context.Context, log *logrus.Entry, c *client.Client, text string) (int64, *string) {
	rm := &reminder.Reminder{
		ClientID: c.ID,
		Message:  text,
		Channel:  reminder.ChannelWhatsApp,
		Status:   reminder.StatusPending,
	}
	if err := s.reminderRepo.Create(ctx, rm); err != nil {
		// Still attempt delivery; the client should not miss the message because of bookkeeping.
		log.WithError(err).Error("Failed to record WhatsApp reminder")
		rm = nil
	}

	sendErr := s.whatsapp.Send(ctx, c.Phone, text)
	if sendErr != nil {
		log.WithError(sendErr).Warn("WhatsApp confirmation failed")
		s.metrics.Notification(channelWhatsApp, metrics.OutcomeFailed)
	} else {
		log.Info("WhatsApp confirmation sent")
		s.metrics.Notification(channelWhatsApp, metrics.OutcomeSent)
	}

	if rm == nil {
		return 0, errorText(sendErr)
	}
	s.settleReminder(ctx, log, rm.ID, sendErr)
	return rm.ID, errorText(sendErr)
}

// settleReminder records the delivery result even when ctx has ended, so a
// message that went out is never left pending and sent again.
func (s *NotificationService) settleReminder(ctx context.Context, log *logrus.Entry, reminderID int64, sendErr error) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if sendErr != nil {
		err = s.reminderRepo.MarkFailed(ctx, reminderID, sendErr.Error())
	} else {
		err = s.reminderRepo.MarkSent(ctx, reminderID, s.clock.Now())
	}
	if err != nil {
		log.WithError(err).WithField("reminder_id", reminderID).Error("Failed to update reminder status")
	}
}

func (s *NotificationService) alertManager(log *logrus.Entry, notice PaymentNotice) {
	if s.chat == nil || s.managerChatID == 0 {
		return
	}
	text := fmt.Sprintf("Payment received: %s paid %s for %s subscription #%d. Next payment due %s.",
		notice.Client.Name,
		notice.Payment.Amount.StringFixed(2),
		notice.Subscription.Kind,
		notice.Subscription.ID,
		notice.Subscription.NextPaymentDate.Format(dateLayout),
	)
	if err := s.chat.SendMessage(s.managerChatID, text, nil); err != nil {
		log.WithError(err).Warn("Failed to alert manager about payment")
		s.metrics.Notification(channelTelegram, metrics.OutcomeFailed)
		return
	}
	s.metrics.Notification(channelTelegram, metrics.OutcomeSent)
}

// DispatchDueReminders delivers every pending reminder whose scheduled time
// has come. Problems with one reminder do not stop the others.
func (s *NotificationService) DispatchDueReminders(ctx context.Context) (int, error) {
	due, err := s.reminderRepo.ListDue(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}
	s.logger.WithField("count", len(due)).Info("Dispatching due reminders")

	sent := 0
	for i, rm := range due {
		if err := ctx.Err(); err != nil {
			s.logger.WithField("remaining", len(due)-i).Warn("Reminder dispatch stopped before all reminders were delivered")
			return sent, fmt.Errorf("reminder dispatch interrupted: %w", err)
		}
		log := s.logger.WithFields(logrus.Fields{"reminder_id": rm.ID, "client_id": rm.ClientID, "channel": rm.Channel})

		deliveryErr := s.deliverReminder(ctx, rm)
		if deliveryErr != nil {
			log.WithError(deliveryErr).Warn("Reminder delivery failed")
		} else {
			sent++
		}
		s.settleReminder(ctx, log, rm.ID, deliveryErr)
	}
	return sent, nil
}

func (s *NotificationService) deliverReminder(ctx context.Context, rm *reminder.Reminder) error {
	if rm.Channel != reminder.ChannelWhatsApp {
		// System reminders are shown in the staff UI; dispatching means they are now visible.
		s.metrics.Notification(channelSystem, metrics.OutcomeSent)
		return nil
	}

	c, err := s.clientRepo.GetByID(ctx, rm.ClientID)
	if err != nil {
		return fmt.Errorf("failed to load client: %w", err)
	}
	if !ShouldSendWhatsApp(c, nil) {
		s.metrics.Notification(channelWhatsApp, metrics.OutcomeSkipped)
		return fmt.Errorf("client has not consented to WhatsApp messages or has no phone number")
	}
	if err := s.whatsapp.Send(ctx, c.Phone, rm.Message); err != nil {
		s.metrics.Notification(channelWhatsApp, metrics.OutcomeFailed)
		return err
	}
	s.metrics.Notification(channelWhatsApp, metrics.OutcomeSent)
	return nil
}

const dateLayout = "2006-01-02"

func paymentEmail(n PaymentNotice) (subject, body string) {
	subject = "Payment received"
	body = fmt.Sprintf("Hello %s,\n\nWe received your payment of %s on %s for your %s subscription.\nYour next payment is due on %s.\n\nThank you.",
		n.Client.Name,
		n.Payment.Amount.StringFixed(2),
		n.Payment.PaymentDate.Format(dateLayout),
		n.Subscription.Kind,
		n.Subscription.NextPaymentDate.Format(dateLayout),
	)
	return subject, body
}

func paymentWhatsAppText(n PaymentNotice) string {
	return fmt.Sprintf("Hello %s, we received your payment of %s for your %s service. Next payment due: %s. Thank you!",
		n.Client.Name,
		n.Payment.Amount.StringFixed(2),
		n.Subscription.Kind,
		n.Subscription.NextPaymentDate.Format(dateLayout),
	)
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

