package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookline/bot"
	"bookline/config"
	"bookline/cron"
	"bookline/database"
	appointmentRepo "bookline/database/repository/appointment"
	paymentRepo "bookline/database/repository/payment"
	providerRepo "bookline/database/repository/provider"
	serviceRepo "bookline/database/repository/service"
	"bookline/handlers"
	"bookline/routes"
	"bookline/services/booking"
	"bookline/services/flow"
	"bookline/services/notification"
	"bookline/services/payment"
	"bookline/services/reminder"
	"bookline/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitSessionCache()
	utils.InitReminderCache()

	location, err := time.LoadLocation(config.AppConfig.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", config.AppConfig.Timezone), zap.Error(err))
	}

	// Repositories.
	appts := appointmentRepo.NewMongoAppointmentRepo()
	providers := providerRepo.NewMongoProviderRepo()
	services := serviceRepo.NewMongoServiceRepo()
	payments := paymentRepo.NewMongoPaymentRepo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appts.EnsureIndexes(); err != nil {
		logger.Fatal("failed to ensure indexes", zap.Error(err))
	}

	// Chat transport.
	api, err := tgbotapi.NewBotAPI(config.AppConfig.BotToken)
	if err != nil {
		logger.Fatal("failed to connect to telegram", zap.Error(err))
	}
	sender := notification.NewTelegramSender(api, logger)

	// Core services.
	coordinator := &booking.DefaultCoordinator{
		Appointments: appts,
		Providers:    providers,
		Services:     services,
		Granularity:  config.AppConfig.SlotGranularityMinutes,
		Logger:       logger,
	}

	machine := &flow.Machine{
		Sessions:   flow.NewRedisSessionStore(utils.GetSessionCacheClient(), config.SessionTTL()),
		Coord:      coordinator,
		Services:   services,
		WindowDays: config.AppConfig.BookingWindowDays,
		Location:   location,
		Logger:     logger,
		Sender:     sender,
		Operators:  config.AppConfig.OperatorChatIDs,
	}

	gate := &payment.DefaultGate{
		Payments:  payments,
		Provider:  payment.NewStripeProvider(config.AppConfig.StripeKey),
		Fulfiller: machine,
		Expiry:    time.Duration(config.AppConfig.PaymentExpiryMins) * time.Minute,
		Logger:    logger,
	}
	machine.Gate = gate

	// Task queue for confirmation deadlines.
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskQueueDB,
	})
	defer asynqClient.Close()

	scheduler := &reminder.Scheduler{
		Appointments: appts,
		Sender:       sender,
		Dedup:        reminder.NewRedisDedup(utils.GetReminderCacheClient()),
		Enqueuer:     &reminder.AsynqEnqueuer{Client: asynqClient},
		Intervals:    config.AppConfig.ReminderIntervalMins,
		Lookahead:    time.Duration(config.AppConfig.ReminderLookaheadHours) * time.Hour,
		Deadline:     config.ConfirmDeadline(),
		SendTimeout:  time.Duration(config.AppConfig.ReminderSendTimeoutSecs) * time.Second,
		Location:     location,
		Logger:       logger,
	}

	cron.InitDeadlineWorker(reminder.HandleConfirmDeadline(coordinator, appts, sender, logger))
	ticker := cron.InitTicker(scheduler, gate)
	defer ticker.Stop()

	// Chat boundary.
	chatBot := &bot.Bot{
		API:          api,
		Machine:      machine,
		Coord:        coordinator,
		Appointments: appts,
		Gate:         gate,
		Sender:       sender,
		Logger:       logger,
		IsOperator:   config.IsOperator,
		Location:     location,
	}
	go chatBot.Run(ctx)

	// Ops HTTP surface.
	router := routes.SetupRouter(&handlers.HandlerBundle{
		Appointments: appts,
		Coord:        coordinator,
	})
	server := &http.Server{
		Addr:    ":" + config.AppConfig.OpsPort,
		Handler: router,
	}
	go func() {
		logger.Info("ops server listening", zap.String("port", config.AppConfig.OpsPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown failed", zap.Error(err))
	}
}
