package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"subscription_billing/internal/app"
	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/reminder"
	"subscription_billing/internal/domain/subscription"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type PaymentService interface {
	RecordPayment(ctx context.Context, in app.RecordPaymentInput) (*app.RecordPaymentResult, error)
	ListPayments(ctx context.Context, subscriptionID int64) ([]*payment.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
}

type SubscriptionService interface {
	Create(ctx context.Context, in app.CreateSubscriptionInput) (*subscription.Subscription, error)
	Get(ctx context.Context, id int64) (*subscription.Subscription, error)
	List(ctx context.Context, filter subscription.ListFilter) ([]*subscription.Subscription, error)
	Stop(ctx context.Context, id int64) (*subscription.Subscription, error)
	Resume(ctx context.Context, id int64) (*subscription.Subscription, error)
}

type ClientService interface {
	Create(ctx context.Context, in app.ClientInput) (*client.Client, error)
	Get(ctx context.Context, id int64) (*client.Client, error)
	List(ctx context.Context) ([]*client.Client, error)
	Update(ctx context.Context, id int64, in app.ClientInput) (*client.Client, error)
	Delete(ctx context.Context, id int64) error
}

type ReminderService interface {
	Create(ctx context.Context, in app.CreateReminderInput) (*reminder.Reminder, error)
	ListByClient(ctx context.Context, clientID int64) ([]*reminder.Reminder, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// Handler holds the application services that handlers will interact with.
type Handler struct {
	payments      PaymentService
	subscriptions SubscriptionService
	clients       ClientService
	reminders     ReminderService
	reconciler    Reconciler
	logger        *logrus.Entry
}

func NewHandler(p PaymentService, s SubscriptionService, c ClientService, r ReminderService, rec Reconciler, logger *logrus.Entry) *Handler {
	return &Handler{
		payments:      p,
		subscriptions: s,
		clients:       c,
		reminders:     r,
		reconciler:    rec,
		logger:        logger,
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap turns an error-returning handler into an http.HandlerFunc. All error
// responses are written here.
func (h *Handler) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		code := writeError(w, err)
		log := h.logger.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
			"status":     code,
		})
		if code >= http.StatusInternalServerError {
			log.Error("Request failed")
		} else {
			log.Debug("Request rejected")
		}
	}
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequestf("invalid id %q", raw)
	}
	return id, nil
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) error {
	var req recordPaymentRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return err
	}

	res, err := h.payments.RecordPayment(r.Context(), app.RecordPaymentInput{
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		PaymentDate:    req.PaymentDate.timePtr(),
		Method:         req.Method,
		Notes:          req.Notes,
		SendWhatsApp:   req.SendWhatsApp,
	})
	if err != nil {
		return err
	}

	respondWithJSON(w, http.StatusCreated, recordPaymentResponse{
		PaymentID:       res.PaymentID,
		NextPaymentDate: res.NextPaymentDate.Format(dateLayout),
		Status:          string(res.Status),
		EmailSent:       res.EmailSent,
		WhatsAppSent:    res.WhatsAppSent,
		WhatsAppError:   res.WhatsAppError,
	})
	return nil
}

func (h *Handler) handleDeletePayment(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	if err := h.payments.DeletePayment(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) error {
	var filter subscription.ListFilter
	q := r.URL.Query()
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return badRequestf("invalid client_id %q", raw)
		}
		filter.ClientID = id
	}
	for _, raw := range q["status"] {
		status, err := subscription.ParseStatus(raw)
		if err != nil {
			return badRequestf("%v", err)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	subs, err := h.subscriptions.List(r.Context(), filter)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, mapSlice(subs, toSubscriptionResponse))
	return nil
}

func (h *Handler) handleCreateSubscription(w http.ResponseWriter, r *http.Request) error {
	var req createSubscriptionRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return err
	}

	sub, err := h.subscriptions.Create(r.Context(), app.CreateSubscriptionInput{
		ClientID:        req.ClientID,
		Kind:            subscription.Kind(req.Kind),
		StartDate:       req.StartDate.Time,
		EndDate:         req.EndDate.timePtr(),
		BillingCycle:    subscription.Cycle(req.BillingCycle),
		MonthlyAmount:   req.MonthlyAmount,
		NextPaymentDate: req.NextPaymentDate.timePtr(),
	})
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
	return nil
}

func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	sub, err := h.subscriptions.Get(r.Context(), id)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, toSubscriptionResponse(sub))
	return nil
}

func (h *Handler) handleStopSubscription(w http.ResponseWriter, r *http.Request) error {
	return h.changeStatus(w, r, h.subscriptions.Stop)
}

func (h *Handler) handleResumeSubscription(w http.ResponseWriter, r *http.Request) error {
	return h.changeStatus(w, r, h.subscriptions.Resume)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*subscription.Subscription, error)) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	sub, err := fn(r.Context(), id)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, toSubscriptionResponse(sub))
	return nil
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) error {
	n, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"expired": n})
	return nil
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	if _, err := h.subscriptions.Get(r.Context(), id); err != nil {
		return err
	}
	payments, err := h.payments.ListPayments(r.Context(), id)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, mapSlice(payments, toPaymentResponse))
	return nil
}

func (h *Handler) handleListClients(w http.ResponseWriter, r *http.Request) error {
	clients, err := h.clients.List(r.Context())
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, mapSlice(clients, toClientResponse))
	return nil
}

func (h *Handler) handleCreateClient(w http.ResponseWriter, r *http.Request) error {
	var req clientRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return err
	}
	c, err := h.clients.Create(r.Context(), app.ClientInput(req))
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusCreated, toClientResponse(c))
	return nil
}

func (h *Handler) handleGetClient(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	c, err := h.clients.Get(r.Context(), id)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, toClientResponse(c))
	return nil
}

func (h *Handler) handleUpdateClient(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	var req clientRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return err
	}
	c, err := h.clients.Update(r.Context(), id, app.ClientInput(req))
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, toClientResponse(c))
	return nil
}

func (h *Handler) handleDeleteClient(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	if err := h.clients.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) handleCreateReminder(w http.ResponseWriter, r *http.Request) error {
	var req createReminderRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		return err
	}
	rm, err := h.reminders.Create(r.Context(), app.CreateReminderInput{
		ClientID:    req.ClientID,
		Message:     req.Message,
		Channel:     reminder.Channel(req.Channel),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusCreated, toReminderResponse(rm))
	return nil
}

func (h *Handler) handleListReminders(w http.ResponseWriter, r *http.Request) error {
	id, err := idParam(r)
	if err != nil {
		return err
	}
	reminders, err := h.reminders.ListByClient(r.Context(), id)
	if err != nil {
		return err
	}
	respondWithJSON(w, http.StatusOK, mapSlice(reminders, toReminderResponse))
	return nil
}
