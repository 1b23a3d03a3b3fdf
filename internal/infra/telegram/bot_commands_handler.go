// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")
	b.Handle("/start", startHandler(adminTelegramID, startHelpLogger))
	b.Handle("/help", helpHandler(adminTelegramID, startHelpLogger))
}

func startHandler(adminTelegramID int64, logger *logrus.Entry) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := logger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			return c.Send(fmt.Sprintf("Hello %s! Billing bot is ready. Use /help for the list of commands.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("Hello! This bot is for billing staff only.")
	}
}

func helpHandler(adminTelegramID int64, logger *logrus.Entry) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := logger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID != adminTelegramID {
			return c.Send("No commands are available to you.")
		}

		var helpText strings.Builder
		helpText.WriteString("Staff commands:\n\n")
		helpText.WriteString("`/pay <subscription_id> <amount> [method] [YYYY-MM-DD]`\n - Record a payment and move the due date one billing cycle forward.\n\n")
		helpText.WriteString("`/due`\n - List subscriptions that are due or expired.\n\n")
		helpText.WriteString("`/stop <subscription_id>`\n - Pause billing for a subscription.\n\n")
		helpText.WriteString("`/resume <subscription_id>`\n - Resume a stopped subscription.\n\n")
		helpText.WriteString("`/reconcile`\n - Expire overdue subscriptions now.\n\n")
		helpText.WriteString("`/help`\n - Show this message.")
		return c.Send(helpText.String(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	}
}
