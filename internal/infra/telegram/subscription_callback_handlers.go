package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// Inline button identifiers.
const (
	callbackStop   = "sub_stop"
	callbackResume = "sub_resume"
)

// handleCallback handles the inline buttons attached to /due listings.
// Telebot delivers button data as "\f<unique>|<data>".
func (h *AdminHandlers) handleCallback(ctx context.Context, c telebot.Context, log *logrus.Entry) error {
	unique, data, ok := strings.Cut(strings.TrimPrefix(c.Callback().Data, "\f"), "|")
	if !ok {
		log.WithField("data", c.Callback().Data).Warn("Invalid callback data format")
		return c.Respond(&telebot.CallbackResponse{Text: "Could not process the button."})
	}

	id, err := strconv.ParseInt(data, 10, 64)
	if err != nil || id <= 0 {
		log.WithField("data", data).Warn("Invalid subscription ID in callback")
		return c.Respond(&telebot.CallbackResponse{Text: "Invalid subscription ID."})
	}
	log = log.WithFields(logrus.Fields{"callback": unique, "subscription_id": id})

	switch unique {
	case callbackStop:
		if _, err := h.subscriptions.Stop(ctx, id); err != nil {
			return h.replyError(c, log, "Failed to stop subscription", err)
		}
		markup := &telebot.ReplyMarkup{}
		markup.Inline(markup.Row(markup.Data(fmt.Sprintf("Resume #%d", id), callbackResume, data)))
		if err := c.Edit(fmt.Sprintf("Subscription #%d stopped.", id), markup); err != nil {
			log.WithError(err).Warn("Failed to edit message after stop")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Stopped."})
	case callbackResume:
		sub, err := h.subscriptions.Resume(ctx, id)
		if err != nil {
			return h.replyError(c, log, "Failed to resume subscription", err)
		}
		if err := c.Edit(fmt.Sprintf("Subscription #%d is %s.", id, sub.Status)); err != nil {
			log.WithError(err).Warn("Failed to edit message after resume")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Resumed."})
	default:
		log.Warn("Unknown callback")
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	}
}
