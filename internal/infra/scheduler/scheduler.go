package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reconciler expires overdue subscriptions.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReminderDispatcher delivers reminders whose time has come.
type ReminderDispatcher interface {
	DispatchDueReminders(ctx context.Context) (int, error)
}

type BillingScheduler struct {
	cronEngine            *cron.Cron
	reconciler            Reconciler
	dispatcher            ReminderDispatcher
	logger                *logrus.Entry
	cronSpecReconcile     string
	cronSpecReminderCheck string
}

func NewBillingScheduler(
	reconciler Reconciler,
	dispatcher ReminderDispatcher,
	logger *logrus.Entry,
	location *time.Location,
	cronSpecReconcile string, // e.g., "5 0 * * *" (00:05 daily)
	cronSpecReminderCheck string, // e.g., "*/5 * * * *" (every 5 minutes)
) *BillingScheduler {
	if location == nil {
		location = time.Local
	}
	cronLogger := cron.PrintfLogger(logger.WithField("source", "cron"))
	return &BillingScheduler{
		cronEngine: cron.New(
			cron.WithLocation(location), // Business calendar, so the sweep runs after local midnight
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		reconciler:            reconciler,
		dispatcher:            dispatcher,
		logger:                logger,
		cronSpecReconcile:     cronSpecReconcile,
		cronSpecReminderCheck: cronSpecReminderCheck,
	}
}

func (s *BillingScheduler) Start() error {
	s.logger.Info("Starting billing scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecReconcile, s.runReconcile); err != nil {
		return fmt.Errorf("could not add reconcile cron job %q: %w", s.cronSpecReconcile, err)
	}

	if s.dispatcher != nil {
		if _, err := s.cronEngine.AddFunc(s.cronSpecReminderCheck, s.runReminderDispatch); err != nil {
			return fmt.Errorf("could not add reminder cron job %q: %w", s.cronSpecReminderCheck, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(s.cronEngine.Entries())).Info("Billing scheduler started")
	return nil
}

func (s *BillingScheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	expired, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled reconcile failed")
		return
	}
	s.logger.WithField("expired", expired).Info("Scheduled reconcile finished")
}

func (s *BillingScheduler) runReminderDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	sent, err := s.dispatcher.DispatchDueReminders(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Reminder dispatch failed")
		return
	}
	if sent > 0 {
		s.logger.WithField("sent", sent).Info("Reminder dispatch finished")
	}
}

func (s *BillingScheduler) Stop() {
	s.logger.Info("Stopping billing scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Billing scheduler gracefully stopped")
}
