package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"subscription_billing/internal/domain/client"
	"subscription_billing/internal/domain/payment"
	"subscription_billing/internal/domain/reminder"
	"subscription_billing/internal/domain/subscription"
	"subscription_billing/internal/infra/database"
	"subscription_billing/internal/infra/events"
	"subscription_billing/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// memStore backs every repository interface with maps. txMu plays the part of
// the subscription row lock: a payment transaction holds it from
// LockSubscription until commit or rollback.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID        int64
	clients       map[int64]*client.Client
	subscriptions map[int64]*subscription.Subscription
	payments      map[int64]*payment.Payment
	reminders     map[int64]*reminder.Reminder

	expireErr        error
	failScheduleOnce bool
}

func newMemStore() *memStore {
	return &memStore{
		clients:       map[int64]*client.Client{},
		subscriptions: map[int64]*subscription.Subscription{},
		payments:      map[int64]*payment.Payment{},
		reminders:     map[int64]*reminder.Reminder{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) addClient(c client.Client) *client.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	m.clients[c.ID] = &c
	return &c
}

func (m *memStore) addSubscription(s subscription.Subscription) *subscription.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.subscriptions[s.ID] = &s
	return &s
}

func (m *memStore) subscription(id int64) subscription.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subscriptions[id]
}

func (m *memStore) paymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *memStore) reminderList() []reminder.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reminder.Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memClients struct{ *memStore }

func (r memClients) Create(ctx context.Context, c *client.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	cp := *c
	r.clients[c.ID] = &cp
	return nil
}

func (r memClients) GetByID(ctx context.Context, id int64) (*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, database.ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memClients) List(ctx context.Context) ([]*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*client.Client
	for _, c := range r.clients {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r memClients) Update(ctx context.Context, c *client.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID]; !ok {
		return database.ErrClientNotFound
	}
	cp := *c
	r.clients[c.ID] = &cp
	return nil
}

func (r memClients) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return database.ErrClientNotFound
	}
	delete(r.clients, id)
	return nil
}

type memSubscriptions struct{ *memStore }

func (r memSubscriptions) Create(ctx context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[s.ClientID]; !ok {
		return database.ErrClientNotFound
	}
	s.ID = r.id()
	cp := *s
	r.subscriptions[s.ID] = &cp
	return nil
}

func (r memSubscriptions) GetByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return nil, database.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSubscriptions) List(ctx context.Context, filter subscription.ListFilter) ([]*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*subscription.Subscription
	for _, s := range r.subscriptions {
		if filter.ClientID != 0 && s.ClientID != filter.ClientID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, s.Status) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPaymentDate.Before(out[j].NextPaymentDate) })
	return out, nil
}

func containsStatus(list []subscription.Status, s subscription.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r memSubscriptions) SetStatus(ctx context.Context, id int64, status subscription.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscriptions[id]
	if !ok {
		return database.ErrSubscriptionNotFound
	}
	s.Status = status
	return nil
}

func (r memSubscriptions) ExpireOverdue(ctx context.Context, today time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expireErr != nil {
		return nil, r.expireErr
	}
	var ids []int64
	for _, s := range r.subscriptions {
		if s.Status == subscription.StatusActive && s.NextPaymentDate.Before(today) {
			s.Status = subscription.StatusExpired
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

type memPayments struct{ *memStore }

func (r memPayments) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, database.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPayments) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.payments {
		if p.SubscriptionID == subscriptionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memPayments) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[id]; !ok {
		return database.ErrPaymentNotFound
	}
	delete(r.payments, id)
	return nil
}

// RecordInTx stages writes and applies them only when fn succeeds.
func (r memPayments) RecordInTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	tx := &memPaymentTx{store: r.memStore}
	defer func() {
		if tx.locked {
			r.txMu.Unlock()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range tx.payments {
		r.payments[p.ID] = p
	}
	if tx.schedule != nil {
		s := r.subscriptions[tx.schedule.id]
		s.NextPaymentDate = tx.schedule.next
		s.Status = tx.schedule.status
	}
	return nil
}

type stagedSchedule struct {
	id     int64
	next   time.Time
	status subscription.Status
}

type memPaymentTx struct {
	store    *memStore
	locked   bool
	payments []*payment.Payment
	schedule *stagedSchedule
}

func (tx *memPaymentTx) LockSubscription(ctx context.Context, id int64) (*subscription.Subscription, *client.Client, error) {
	if !tx.locked {
		tx.store.txMu.Lock()
		tx.locked = true
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	s, ok := tx.store.subscriptions[id]
	if !ok {
		return nil, nil, database.ErrSubscriptionNotFound
	}
	c := tx.store.clients[s.ClientID]
	sc, cc := *s, *c
	return &sc, &cc, nil
}

func (tx *memPaymentTx) Create(ctx context.Context, p *payment.Payment) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	p.ID = tx.store.id()
	p.CreatedAt = time.Now()
	cp := *p
	tx.payments = append(tx.payments, &cp)
	return nil
}

func (tx *memPaymentTx) UpdateSchedule(ctx context.Context, id int64, next time.Time, status subscription.Status) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	if tx.store.failScheduleOnce {
		tx.store.failScheduleOnce = false
		return errors.New("connection reset")
	}
	tx.schedule = &stagedSchedule{id: id, next: next, status: status}
	return nil
}

type memReminders struct{ *memStore }

func (r memReminders) Create(ctx context.Context, rm *reminder.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm.ID = r.id()
	rm.CreatedAt = time.Now()
	cp := *rm
	r.reminders[rm.ID] = &cp
	return nil
}

func (r memReminders) GetByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.reminders[id]
	if !ok {
		return nil, database.ErrReminderNotFound
	}
	cp := *rm
	return &cp, nil
}

func (r memReminders) ListByClient(ctx context.Context, clientID int64) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Reminder
	for _, rm := range r.reminders {
		if rm.ClientID == clientID {
			cp := *rm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memReminders) ListDue(ctx context.Context, now time.Time) ([]*reminder.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Reminder
	for _, rm := range r.reminders {
		if rm.Status == reminder.StatusPending && rm.ScheduledAt != nil && !rm.ScheduledAt.After(now) {
			cp := *rm
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memReminders) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	return r.transition(ctx, id, func(rm *reminder.Reminder) {
		rm.Status = reminder.StatusSent
		rm.SentAt = &sentAt
	})
}

func (r memReminders) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.transition(ctx, id, func(rm *reminder.Reminder) {
		rm.Status = reminder.StatusFailed
		rm.Error = reason
	})
}

func (r memReminders) transition(ctx context.Context, id int64, apply func(*reminder.Reminder)) error {
	// A real driver refuses to run a query on a finished context.
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.reminders[id]
	if !ok {
		return database.ErrReminderNotFound
	}
	if rm.Status != reminder.StatusPending {
		return database.ErrReminderNotPending
	}
	apply(rm)
	return nil
}

type mailerStub struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (m *mailerStub) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *mailerStub) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type whatsAppStub struct {
	mu     sync.Mutex
	err    error
	calls  []string
	onSend func() // runs after a send is recorded
}

func (w *whatsAppStub) Send(ctx context.Context, phone, message string) error {
	w.mu.Lock()
	w.calls = append(w.calls, message)
	onSend, err := w.onSend, w.err
	w.mu.Unlock()
	if onSend != nil {
		onSend()
	}
	return err
}

func (w *whatsAppStub) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type chatStub struct {
	mu       sync.Mutex
	messages []string
}

func (c *chatStub) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

type publisherStub struct {
	mu     sync.Mutex
	events int
}

func (p *publisherStub) PublishPaymentRecorded(ctx context.Context, evt events.PaymentRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events++
	return nil
}

func fixedClock(today string) Clock {
	now, err := time.Parse(time.RFC3339, today+"T09:00:00Z")
	if err != nil {
		panic(err)
	}
	return Clock{Now: func() time.Time { return now }, Location: time.UTC}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// harness wires the services against one memStore.
type harness struct {
	store    *memStore
	mailer   *mailerStub
	whatsapp *whatsAppStub
	chat     *chatStub
	events   *publisherStub
	metrics  *metrics.BillingMetrics

	notifier      *NotificationService
	payments      *PaymentService
	reconciler    *Reconciler
	subscriptions *SubscriptionService
	clients       *ClientService
	reminders     *ReminderService
}

func newHarness(today string) *harness {
	h := &harness{
		store:    newMemStore(),
		mailer:   &mailerStub{},
		whatsapp: &whatsAppStub{},
		chat:     &chatStub{},
		events:   &publisherStub{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	clock := fixedClock(today)
	log := testLogger()

	clients := memClients{h.store}
	subs := memSubscriptions{h.store}
	pays := memPayments{h.store}
	rems := memReminders{h.store}

	h.notifier = NewNotificationService(rems, clients, h.mailer, h.whatsapp, h.chat, 42, h.metrics, clock, log)
	h.payments = NewPaymentService(pays, pays, h.notifier, h.events, h.metrics, clock, log)
	h.reconciler = NewReconciler(subs, h.metrics, clock, log)
	h.subscriptions = NewSubscriptionService(subs, clients, h.reconciler, clock, log)
	h.clients = NewClientService(clients, log)
	h.reminders = NewReminderService(rems, clients, clock, log)
	return h
}
