package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"expensetracker/internal/amqp"
	"expensetracker/internal/config"
	"expensetracker/internal/scheduler"
	"expensetracker/internal/services"
	"expensetracker/internal/session"
	"expensetracker/internal/storage"
)

const (
	RecurringJobName      = "recurring-transactions"
	SessionCleanupJobName = "session-cleanup"
)

// InitAMQP connects the event client when AMQP_URL is set. It returns nil
// when events are disabled or the broker is unreachable.
func InitAMQP(cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		slog.Info("AMQP disabled - transaction events will not be published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		slog.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return nil
	}
	slog.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// EventPublisher adapts a possibly nil client to services.EventPublisher
// without producing a typed nil interface.
func EventPublisher(client *amqp.Client) services.EventPublisher {
	if client == nil {
		return nil
	}
	return client
}

// InitSessionStore returns the session store selected by SESSION_BACKEND and
// a function releasing its resources.
func InitSessionStore(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository) (session.Store, func()) {
	if cfg.SessionBackend != "redis" {
		return session.NewSQLiteStore(repo), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Error("Failed to connect to Redis session store", "error", err, "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	slog.Info("Using Redis session store", "addr", cfg.RedisAddr)
	return session.NewRedisStore(client), func() { _ = client.Close() }
}

// RegisterRecurringJob schedules the recurring-transaction sweep.
func RegisterRecurringJob(sched *scheduler.Scheduler, cfg *config.Config, processor *services.RecurringProcessor) {
	err := sched.AddJob(RecurringJobName, cfg.RecurringSchedule, func(ctx context.Context) error {
		_, err := processor.ProcessDue(ctx, time.Now())
		return err
	})
	if err != nil {
		slog.Error("Failed to schedule recurring transactions", "error", err)
		os.Exit(1)
	}
}
