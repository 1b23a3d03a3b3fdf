package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"subscription_billing/internal/app"
	"subscription_billing/internal/domain/subscription"
	idb "subscription_billing/internal/infra/database"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// PaymentRecorder is the payment workflow as seen by the bot.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, in app.RecordPaymentInput) (*app.RecordPaymentResult, error)
}

// SubscriptionManager covers the subscription actions staff can take from chat.
type SubscriptionManager interface {
	Due(ctx context.Context) ([]*subscription.Subscription, error)
	Stop(ctx context.Context, id int64) (*subscription.Subscription, error)
	Resume(ctx context.Context, id int64) (*subscription.Subscription, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

const msgUnauthorized = "Error: you are not allowed to run this command."

// AdminHandlers serves the staff commands. Only the configured admin may use them.
type AdminHandlers struct {
	payments        PaymentRecorder
	subscriptions   SubscriptionManager
	reconciler      Reconciler
	adminTelegramID int64
	logger          *logrus.Entry
}

func NewAdminHandlers(payments PaymentRecorder, subs SubscriptionManager, reconciler Reconciler, adminTelegramID int64, logger *logrus.Entry) *AdminHandlers {
	return &AdminHandlers{
		payments:        payments,
		subscriptions:   subs,
		reconciler:      reconciler,
		adminTelegramID: adminTelegramID,
		logger:          logger,
	}
}

// RegisterAdminHandlers registers handlers for admin commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, h *AdminHandlers) {
	b.Handle("/pay", h.guard(ctx, "/pay", h.handlePay))
	b.Handle("/due", h.guard(ctx, "/due", h.handleDue))
	b.Handle("/stop", h.guard(ctx, "/stop", h.handleStop))
	b.Handle("/resume", h.guard(ctx, "/resume", h.handleResume))
	b.Handle("/reconcile", h.guard(ctx, "/reconcile", h.handleReconcile))
	b.Handle(telebot.OnCallback, h.guard(ctx, "callback", h.handleCallback))
}

type commandFunc func(ctx context.Context, c telebot.Context, log *logrus.Entry) error

// guard logs the command and rejects anyone but the admin.
func (h *AdminHandlers) guard(ctx context.Context, name string, fn commandFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		handlerLogger := h.logger.WithFields(logrus.Fields{
			"handler":   name,
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != h.adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			if c.Callback() != nil {
				return c.Respond(&telebot.CallbackResponse{Text: msgUnauthorized})
			}
			return c.Send(msgUnauthorized)
		}
		return fn(ctx, c, handlerLogger)
	}
}

// /pay <subscription_id> <amount> [method] [YYYY-MM-DD]
func (h *AdminHandlers) handlePay(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	args := c.Args()
	if len(args) < 2 || len(args) > 4 {
		log.WithField("args_count", len(args)).Warn("Invalid command format")
		return c.Send("Invalid format. Use: /pay <subscription_id> <amount> [method] [YYYY-MM-DD]")
	}

	subID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || subID <= 0 {
		return c.Send("Error: subscription ID must be a positive number.")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || !amount.IsPositive() {
		return c.Send("Error: amount must be a positive number, e.g. 50.00")
	}

	in := app.RecordPaymentInput{SubscriptionID: subID, Amount: amount, Method: "telegram"}
	if len(args) >= 3 {
		in.Method = args[2]
	}
	if len(args) == 4 {
		d, err := time.Parse("2006-01-02", args[3])
		if err != nil {
			return c.Send("Error: payment date must look like 2025-01-31.")
		}
		in.PaymentDate = &d
	}

	log = log.WithFields(logrus.Fields{"subscription_id": subID, "amount": amount.StringFixed(2)})
	res, err := h.payments.RecordPayment(ctx, in)
	if err != nil {
		return h.replyError(c, log, "Failed to record payment", err)
	}

	log.WithField("payment_id", res.PaymentID).Info("Payment recorded from chat")

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("Payment #%d recorded. Subscription #%d is %s, next payment due %s.",
		res.PaymentID, subID, res.Status, res.NextPaymentDate.Format("2006-01-02")))
	if res.EmailSent {
		msg.WriteString("\nE-mail confirmation sent.")
	}
	switch {
	case res.WhatsAppSent:
		msg.WriteString("\nWhatsApp confirmation sent.")
	case res.WhatsAppError != nil:
		msg.WriteString("\nWhatsApp confirmation failed: " + *res.WhatsAppError)
	}
	return c.Send(msg.String())
}

func (h *AdminHandlers) handleDue(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	subs, err := h.subscriptions.Due(ctx)
	if err != nil {
		return h.replyError(c, log, "Failed to list due subscriptions", err)
	}
	if len(subs) == 0 {
		return c.Send("No subscriptions are due.")
	}
	log.WithField("count", len(subs)).Info("Listing due subscriptions")

	var response strings.Builder
	response.WriteString("--- Due subscriptions ---\n")
	markup := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for _, s := range subs {
		response.WriteString(fmt.Sprintf("#%d client %d, %s, %s every %d month(s), due %s, %s\n",
			s.ID, s.ClientID, s.Kind, s.CycleAmount().StringFixed(2), s.BillingCycle,
			s.NextPaymentDate.Format("2006-01-02"), s.Status))
		rows = append(rows, markup.Row(markup.Data(fmt.Sprintf("Stop #%d", s.ID), callbackStop, strconv.FormatInt(s.ID, 10))))
	}
	markup.Inline(rows...)
	return c.Send(response.String(), markup)
}

func (h *AdminHandlers) handleStop(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	id, ok := singleID(c)
	if !ok {
		return c.Send("Invalid format. Use: /stop <subscription_id>")
	}
	sub, err := h.subscriptions.Stop(ctx, id)
	if err != nil {
		return h.replyError(c, log.WithField("subscription_id", id), "Failed to stop subscription", err)
	}
	return c.Send(fmt.Sprintf("Subscription #%d stopped.", sub.ID))
}

func (h *AdminHandlers) handleResume(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	id, ok := singleID(c)
	if !ok {
		return c.Send("Invalid format. Use: /resume <subscription_id>")
	}
	sub, err := h.subscriptions.Resume(ctx, id)
	if err != nil {
		return h.replyError(c, log.WithField("subscription_id", id), "Failed to resume subscription", err)
	}
	return c.Send(fmt.Sprintf("Subscription #%d is %s, next payment due %s.", sub.ID, sub.Status, sub.NextPaymentDate.Format("2006-01-02")))
}

func (h *AdminHandlers) handleReconcile(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	n, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		return h.replyError(c, log, "Manual reconcile failed", err)
	}
	return c.Send(fmt.Sprintf("Reconcile finished: %d subscription(s) expired.", n))
}

func singleID(c telebot.Context) (int64, bool) {
	args := c.Args()
	if len(args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil && id > 0
}

// replyError logs err and answers with a message staff can act on.
func (h *AdminHandlers) replyError(c telebot.Context, log *logrus.Entry, what string, err error) error {
	logWithError := log.WithError(err)
	var msg string
	switch {
	case errors.Is(err, idb.ErrSubscriptionNotFound):
		logWithError.Warn(what)
		msg = "Error: subscription not found."
	case errors.Is(err, app.ErrSubscriptionAlreadyStopped),
		errors.Is(err, app.ErrSubscriptionNotStopped),
		errors.Is(err, app.ErrInvalidSubscriptionID),
		errors.Is(err, app.ErrInvalidBillingCycle):
		logWithError.Warn(what)
		msg = "Error: " + err.Error()
	default:
		logWithError.Error(what)
		msg = fmt.Sprintf("%s: %s", what, err.Error())
	}
	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{Text: msg})
	}
	return c.Send(msg)
}
