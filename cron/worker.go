package cron

import (
	"context"
	"time"

	"bookline/config"
	"bookline/services/payment"
	"bookline/services/reminder"
	"bookline/services/tasks"
	"bookline/utils"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// InitDeadlineWorker runs the async worker that fires confirmation deadline
// checks, in the background.
func InitDeadlineWorker(handler asynq.HandlerFunc) {
	logger := utils.GetLogger()
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeConfirmDeadline, handler)

	go monitorRedisConnection()

	go func() {
		logger.Info("starting deadline worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				logger.Error("deadline worker failed to start",
					zap.Int("attempt", attempts),
					zap.Int("maxAttempts", maxAttempts),
					zap.Error(err))

				if attempts == maxAttempts {
					logger.Fatal("deadline worker exhausted retries")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
}

// InitTicker starts the per-minute scan that drives staged reminders and the
// payment reconciliation sweep. A slow external call in one tick must not
// bleed into the next, so each run gets a bounded context.
func InitTicker(sched *reminder.Scheduler, gate payment.Gate) *cronv3.Cron {
	logger := utils.GetLogger()
	c := cronv3.New()

	_, err := c.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
		defer cancel()

		if err := sched.Tick(ctx); err != nil {
			logger.Error("reminder tick failed", zap.Error(err))
		}
		if err := gate.SweepPending(ctx); err != nil {
			logger.Error("payment sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("failed to register tick job", zap.Error(err))
	}

	c.Start()
	logger.Info("scheduler ticking", zap.String("interval", "1m"))
	return c
}

// monitorRedisConnection pings the task queue Redis periodically so a lost
// connection shows up in the logs before tasks silently stall.
func monitorRedisConnection() {
	logger := utils.GetLogger()
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisTaskQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("task queue redis connection lost", zap.Error(err))
		}
		time.Sleep(10 * time.Second)
	}
}
