package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription_billing/internal/app"
	"subscription_billing/internal/infra/config"
	idb "subscription_billing/internal/infra/database"
	"subscription_billing/internal/infra/email"
	"subscription_billing/internal/infra/events"
	"subscription_billing/internal/infra/httpapi"
	"subscription_billing/internal/infra/logger"
	"subscription_billing/internal/infra/metrics"
	"subscription_billing/internal/infra/scheduler"
	"subscription_billing/internal/infra/telegram"
	"subscription_billing/internal/infra/whatsapp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.Info("Subscription billing service starting...")

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.EnsureSchema(appCtx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	mainLogger.Info("Database connection established and schema ensured")

	// Initialize Repositories
	clientRepo := idb.NewPostgresClientRepository(db)
	subscriptionRepo := idb.NewPostgresSubscriptionRepository(db)
	paymentRepo := idb.NewPostgresPaymentRepository(db)
	reminderRepo := idb.NewPostgresReminderRepository(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	billingMetrics := metrics.New(registry)

	var mailer app.Mailer
	if cfg.SMTPHost != "" {
		mailer = email.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPTimeout)
	} else {
		mainLogger.Warn("SMTP_HOST not set, e-mails will only be logged")
		mailer = email.NewLogMailer(logger.Component("mailer"))
	}

	whatsappClient := whatsapp.NewClient(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppTimeout)
	if cfg.WhatsAppAPIURL == "" {
		mainLogger.Warn("WHATSAPP_API_URL not set, WhatsApp messages will be recorded as failed")
	}

	var publisher app.EventPublisher
	if cfg.AMQPURL != "" {
		producer, err := events.NewProducer(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not initialize event producer")
		}
		defer producer.Close()
		publisher = producer
		mainLogger.WithField("exchange", cfg.AMQPExchange).Info("Event producer initialized")
	}

	// Initialize Telegram Bot
	var bot *telebot.Bot
	var chat app.ChatSender
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telebot")
		pref := telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{
						"message":   c.Text(),
						"sender_id": c.Sender().ID,
						"chat_id":   c.Chat().ID,
					})
				}
				entry.Error("Telebot error")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		chat = telegram.NewTelebotAdapter(bot)
	}

	clock := app.SystemClock(cfg.Location)

	notificationService := app.NewNotificationService(
		reminderRepo, clientRepo, mailer, whatsappClient, chat, cfg.ManagerTelegramID,
		billingMetrics, clock, logger.Component("notifications"),
	)
	paymentService := app.NewPaymentService(
		paymentRepo, paymentRepo, notificationService, publisher,
		billingMetrics, clock, logger.Component("payments"),
	)
	reconciler := app.NewReconciler(subscriptionRepo, billingMetrics, clock, logger.Component("reconciler"))
	subscriptionService := app.NewSubscriptionService(subscriptionRepo, clientRepo, reconciler, clock, logger.Component("subscriptions"))
	clientService := app.NewClientService(clientRepo, logger.Component("clients"))
	reminderService := app.NewReminderService(reminderRepo, clientRepo, clock, logger.Component("reminders"))
	mainLogger.Info("Application services initialized")

	if n, err := reconciler.Reconcile(appCtx); err != nil {
		mainLogger.WithError(err).Warn("Initial reconcile failed")
	} else {
		mainLogger.WithField("expired", n).Info("Initial reconcile finished")
	}

	billingScheduler := scheduler.NewBillingScheduler(
		reconciler,
		notificationService,
		logger.Component("scheduler"),
		cfg.Location,
		cfg.CronSpecReconcile,
		cfg.CronSpecReminders,
	)
	if err := billingScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	if bot != nil {
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, logger.Component("telegram"))
		adminHandlers := telegram.NewAdminHandlers(paymentService, subscriptionService, reconciler, cfg.AdminTelegramID, logger.Component("telegram_admin"))
		telegram.RegisterAdminHandlers(appCtx, bot, adminHandlers)
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go bot.Start()
		mainLogger.Info("Telegram bot started")
	}

	handler := httpapi.NewHandler(paymentService, subscriptionService, clientService, reminderService, reconciler, logger.Component("http"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, cfg.APIKey, registry, logger.Component("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()
	if cfg.APIKey == "" {
		mainLogger.Warn("API_KEY not set, HTTP API is unauthenticated")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if bot != nil {
		bot.Stop()
	}
	billingScheduler.Stop()
	cancelApp()
	mainLogger.Info("Application shut down gracefully")
}
