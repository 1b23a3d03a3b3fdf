package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/reminder"
	"subscription_billing/internal/domain/subscription"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Date accepts a bare calendar date or a timestamp. Only the calendar date is kept.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string")
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = subscription.DateOnly(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Lets numeric tags like gt=0 apply to money amounts.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(Date); ok {
			return d.Time
		}
		return nil
	}, Date{})
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it.
func decodeAndValidate(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequestf("malformed request body: %v", err)
	}
	return validate.Struct(dst)
}

type recordPaymentRequest struct {
	SubscriptionID int64           `json:"subscription_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentDate    *Date           `json:"payment_date"`
	Method         string          `json:"payment_method" validate:"max=50"`
	Notes          string          `json:"notes" validate:"max=1000"`
	SendWhatsApp   *bool           `json:"send_whatsapp"`
}

type recordPaymentResponse struct {
	PaymentID       int64   `json:"payment_id"`
	NextPaymentDate string  `json:"next_payment_date"`
	Status          string  `json:"status"`
	EmailSent       bool    `json:"email_sent"`
	WhatsAppSent    bool    `json:"whatsapp_sent"`
	WhatsAppError   *string `json:"whatsapp_error"`
}

type createSubscriptionRequest struct {
	ClientID        int64           `json:"client_id" validate:"required,gt=0"`
	Kind            string          `json:"kind" validate:"required,oneof=internet satellite"`
	StartDate       Date            `json:"start_date" validate:"required"`
	EndDate         *Date           `json:"end_date"`
	BillingCycle    int             `json:"billing_cycle" validate:"required,oneof=1 3"`
	MonthlyAmount   decimal.Decimal `json:"monthly_amount" validate:"gte=0"`
	NextPaymentDate *Date           `json:"next_payment_date"`
}

type clientRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Phone           string `json:"phone" validate:"max=32"`
	Email           string `json:"email" validate:"omitempty,email"`
	Address         string `json:"address" validate:"max=500"`
	WhatsAppConsent bool   `json:"whatsapp_consent"`
}

type createReminderRequest struct {
	ClientID    int64      `json:"client_id" validate:"required,gt=0"`
	Message     string     `json:"message" validate:"required,max=1000"`
	Channel     string     `json:"channel" validate:"omitempty,oneof=system whatsapp"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type clientResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	Address         string    `json:"address"`
	WhatsAppConsent bool      `json:"whatsapp_consent"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toClientResponse(c *client.Client) clientResponse {
	return clientResponse{
		ID:              c.ID,
		Name:            c.Name,
		Phone:           c.Phone,
		Email:           c.Email,
		Address:         c.Address,
		WhatsAppConsent: c.WhatsAppConsent,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type subscriptionResponse struct {
	ID              int64   `json:"id"`
	ClientID        int64   `json:"client_id"`
	Kind            string  `json:"kind"`
	StartDate       string  `json:"start_date"`
	EndDate         *string `json:"end_date"`
	BillingCycle    int     `json:"billing_cycle"`
	MonthlyAmount   string  `json:"monthly_amount"`
	CycleAmount     string  `json:"cycle_amount"`
	Status          string  `json:"status"`
	NextPaymentDate string  `json:"next_payment_date"`
}

func toSubscriptionResponse(s *subscription.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:              s.ID,
		ClientID:        s.ClientID,
		Kind:            string(s.Kind),
		StartDate:       s.StartDate.Format(dateLayout),
		BillingCycle:    int(s.BillingCycle),
		MonthlyAmount:   s.MonthlyAmount.StringFixed(2),
		CycleAmount:     s.CycleAmount().StringFixed(2),
		Status:          string(s.Status),
		NextPaymentDate: s.NextPaymentDate.Format(dateLayout),
	}
	if s.EndDate != nil {
		end := s.EndDate.Format(dateLayout)
		resp.EndDate = &end
	}
	return resp
}

type paymentResponse struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	Amount         string    `json:"amount"`
	PaymentDate    string    `json:"payment_date"`
	Method         string    `json:"payment_method"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount.StringFixed(2),
		PaymentDate:    p.PaymentDate.Format(dateLayout),
		Method:         p.Method,
		Notes:          p.Notes,
		CreatedAt:      p.CreatedAt,
	}
}

type reminderResponse struct {
	ID          int64      `json:"id"`
	ClientID    int64      `json:"client_id"`
	Message     string     `json:"message"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toReminderResponse(r *reminder.Reminder) reminderResponse {
	return reminderResponse{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Message:     r.Message,
		Channel:     string(r.Channel),
		Status:      string(r.Status),
		ScheduledAt: r.ScheduledAt,
		SentAt:      r.SentAt,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
