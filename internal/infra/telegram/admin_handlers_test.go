package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"subscription_billing/internal/app"
	"subscription_billing/internal/domain/subscription"
	idb "subscription_billing/internal/infra/database"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const adminID = 1001

type contextStub struct {
	telebot.Context

	sender    *telebot.User
	args      []string
	callback  *telebot.Callback
	sent      []string
	sentOpts  [][]interface{}
	responses []string
	edits     []string
}

func (c *contextStub) Sender() *telebot.User       { return c.sender }
func (c *contextStub) Args() []string              { return c.args }
func (c *contextStub) Callback() *telebot.Callback { return c.callback }

func (c *contextStub) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, what.(string))
	c.sentOpts = append(c.sentOpts, opts)
	return nil
}

func (c *contextStub) Respond(resp ...*telebot.CallbackResponse) error {
	for _, r := range resp {
		c.responses = append(c.responses, r.Text)
	}
	return nil
}

func (c *contextStub) Edit(what interface{}, opts ...interface{}) error {
	c.edits = append(c.edits, what.(string))
	return nil
}

func (c *contextStub) lastSent() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type paymentsStub struct {
	in  app.RecordPaymentInput
	res *app.RecordPaymentResult
	err error
}

func (p *paymentsStub) RecordPayment(ctx context.Context, in app.RecordPaymentInput) (*app.RecordPaymentResult, error) {
	p.in = in
	return p.res, p.err
}

type subsStub struct {
	due     []*subscription.Subscription
	stopped []int64
	resumed []int64
	err     error
}

func (s *subsStub) Due(ctx context.Context) ([]*subscription.Subscription, error) { return s.due, s.err }

func (s *subsStub) Stop(ctx context.Context, id int64) (*subscription.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.stopped = append(s.stopped, id)
	return &subscription.Subscription{ID: id, Status: subscription.StatusStopped}, nil
}

func (s *subsStub) Resume(ctx context.Context, id int64) (*subscription.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.resumed = append(s.resumed, id)
	return &subscription.Subscription{ID: id, Status: subscription.StatusActive, NextPaymentDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}, nil
}

type reconcilerStub struct{ n int }

func (r *reconcilerStub) Reconcile(ctx context.Context) (int, error) { return r.n, nil }

func newTestHandlers(p *paymentsStub, s *subsStub) *AdminHandlers {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewAdminHandlers(p, s, &reconcilerStub{n: 2}, adminID, logrus.NewEntry(l))
}

func run(h *AdminHandlers, fn commandFunc, c *contextStub) error {
	return h.guard(context.Background(), "test", fn)(c)
}

func TestGuard_RejectsNonAdmin(t *testing.T) {
	p := &paymentsStub{}
	h := newTestHandlers(p, &subsStub{})
	c := &contextStub{sender: &telebot.User{ID: 7}, args: []string{"1", "50"}}

	if err := run(h, h.handlePay, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.lastSent() != msgUnauthorized {
		t.Fatalf("expected unauthorized reply, got %q", c.lastSent())
	}
	if p.in.SubscriptionID != 0 {
		t.Fatal("expected payment not to be attempted")
	}
}

func TestHandlePay(t *testing.T) {
	whatsErr := "relay unavailable"
	p := &paymentsStub{res: &app.RecordPaymentResult{
		PaymentID:       9,
		NextPaymentDate: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		Status:          subscription.StatusActive,
		EmailSent:       true,
		WhatsAppError:   &whatsErr,
	}}
	h := newTestHandlers(p, &subsStub{})
	c := &contextStub{sender: &telebot.User{ID: adminID}, args: []string{"3", "50.00", "cash", "2025-01-31"}}

	if err := run(h, h.handlePay, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.in.SubscriptionID != 3 || !p.in.Amount.Equal(decimal.NewFromInt(50)) || p.in.Method != "cash" {
		t.Fatalf("unexpected input: %+v", p.in)
	}
	if p.in.PaymentDate == nil || p.in.PaymentDate.Format("2006-01-02") != "2025-01-31" {
		t.Fatalf("expected payment date 2025-01-31, got %v", p.in.PaymentDate)
	}
	reply := c.lastSent()
	for _, want := range []string{"Payment #9", "2025-02-28", "E-mail confirmation sent", "WhatsApp confirmation failed: relay unavailable"} {
		if !strings.Contains(reply, want) {
			t.Errorf("expected reply to contain %q, got %q", want, reply)
		}
	}
}

func TestHandlePay_ValidatesArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"too few", []string{"1"}, "Invalid format"},
		{"bad id", []string{"x", "50"}, "subscription ID"},
		{"zero amount", []string{"1", "0"}, "amount must be a positive"},
		{"negative amount", []string{"1", "-5"}, "amount must be a positive"},
		{"bad date", []string{"1", "50", "cash", "31/01/2025"}, "payment date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &paymentsStub{}
			h := newTestHandlers(p, &subsStub{})
			c := &contextStub{sender: &telebot.User{ID: adminID}, args: tt.args}

			if err := run(h, h.handlePay, c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(c.lastSent(), tt.want) {
				t.Fatalf("expected reply containing %q, got %q", tt.want, c.lastSent())
			}
			if p.in.SubscriptionID != 0 {
				t.Fatal("expected no payment attempt")
			}
		})
	}
}

func TestHandlePay_NotFound(t *testing.T) {
	p := &paymentsStub{err: idb.ErrSubscriptionNotFound}
	h := newTestHandlers(p, &subsStub{})
	c := &contextStub{sender: &telebot.User{ID: adminID}, args: []string{"3", "50"}}

	_ = run(h, h.handlePay, c)
	if c.lastSent() != "Error: subscription not found." {
		t.Fatalf("unexpected reply %q", c.lastSent())
	}
}

func TestHandleDue_AttachesStopButtons(t *testing.T) {
	s := &subsStub{due: []*subscription.Subscription{
		{ID: 4, ClientID: 1, Kind: subscription.KindInternet, BillingCycle: 1, MonthlyAmount: decimal.NewFromInt(30), Status: subscription.StatusExpired, NextPaymentDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}}
	h := newTestHandlers(&paymentsStub{}, s)
	c := &contextStub{sender: &telebot.User{ID: adminID}}

	if err := run(h, h.handleDue, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.lastSent(), "#4 client 1") {
		t.Fatalf("unexpected listing %q", c.lastSent())
	}
	markup, ok := c.sentOpts[0][0].(*telebot.ReplyMarkup)
	if !ok || len(markup.InlineKeyboard) != 1 {
		t.Fatalf("expected one inline keyboard row, got %+v", c.sentOpts[0])
	}
}

func TestHandleStopAndResume(t *testing.T) {
	s := &subsStub{}
	h := newTestHandlers(&paymentsStub{}, s)

	c := &contextStub{sender: &telebot.User{ID: adminID}, args: []string{"4"}}
	_ = run(h, h.handleStop, c)
	if len(s.stopped) != 1 || s.stopped[0] != 4 {
		t.Fatalf("expected stop of #4, got %v", s.stopped)
	}

	c = &contextStub{sender: &telebot.User{ID: adminID}, args: []string{"4"}}
	_ = run(h, h.handleResume, c)
	if len(s.resumed) != 1 || !strings.Contains(c.lastSent(), "active") {
		t.Fatalf("unexpected resume: %v %q", s.resumed, c.lastSent())
	}

	s.err = app.ErrSubscriptionNotStopped
	c = &contextStub{sender: &telebot.User{ID: adminID}, args: []string{"4"}}
	_ = run(h, h.handleResume, c)
	if !strings.Contains(c.lastSent(), app.ErrSubscriptionNotStopped.Error()) {
		t.Fatalf("expected conflict message, got %q", c.lastSent())
	}
}

func TestHandleReconcile(t *testing.T) {
	h := newTestHandlers(&paymentsStub{}, &subsStub{})
	c := &contextStub{sender: &telebot.User{ID: adminID}}

	_ = run(h, h.handleReconcile, c)
	if c.lastSent() != "Reconcile finished: 2 subscription(s) expired." {
		t.Fatalf("unexpected reply %q", c.lastSent())
	}
}

func TestHandleCallback(t *testing.T) {
	s := &subsStub{}
	h := newTestHandlers(&paymentsStub{}, s)

	c := &contextStub{sender: &telebot.User{ID: adminID}, callback: &telebot.Callback{Data: "\f" + callbackStop + "|12"}}
	if err := run(h, h.handleCallback, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.stopped) != 1 || s.stopped[0] != 12 || c.responses[0] != "Stopped." {
		t.Fatalf("unexpected stop callback result: %v %v", s.stopped, c.responses)
	}

	c = &contextStub{sender: &telebot.User{ID: adminID}, callback: &telebot.Callback{Data: "\f" + callbackResume + "|12"}}
	_ = run(h, h.handleCallback, c)
	if len(s.resumed) != 1 || len(c.edits) != 1 {
		t.Fatalf("unexpected resume callback result: %v %v", s.resumed, c.edits)
	}

	c = &contextStub{sender: &telebot.User{ID: adminID}, callback: &telebot.Callback{Data: "garbage"}}
	_ = run(h, h.handleCallback, c)
	if c.responses[0] != "Could not process the button." {
		t.Fatalf("unexpected response %v", c.responses)
	}

	s.err = errors.New("boom")
	c = &contextStub{sender: &telebot.User{ID: 5}, callback: &telebot.Callback{Data: "\f" + callbackStop + "|12"}}
	_ = run(h, h.handleCallback, c)
	if c.responses[0] != msgUnauthorized {
		t.Fatalf("expected unauthorized callback response, got %v", c.responses)
	}
}
