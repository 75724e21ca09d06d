package main

import (
	"context"
	"flag"
	"os"
	"time"

	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
	"expensetracker/internal/scheduler"
	"expensetracker/internal/services"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep of due recurring templates and exit")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := cli.SetupLogger(level, applog.ComponentRecurring)
	logger.Info("Starting recurring-worker",
		"schedule", cfg.RecurringSchedule,
		"timezone", cfg.RecurringTimezone,
		"workers", cfg.RecurringWorkers,
		"once", *once)

	repo := cli.InitSQLite(cfg.SQLiteDBPath)
	defer repo.Close()

	// Events let a running API server drop cached statistics for affected users.
	amqpClient := cli.InitAMQP(cfg)
	if amqpClient != nil {
		defer amqpClient.Close()
	}
	notifier := services.NewTransactionService(repo, cli.EventPublisher(amqpClient), nil)

	processor := services.NewRecurringProcessor(repo, notifier, services.ProcessorConfig{
		Workers:  cfg.RecurringWorkers,
		Location: cfg.Location(),
	})

	if *once {
		summary, err := processor.ProcessDue(context.Background(), time.Now())
		if err != nil {
			logger.Error("Recurring sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Recurring sweep complete",
			"checked", summary.Checked,
			"created", summary.Created,
			"deactivated", summary.Deactivated,
			"failed", summary.Failed,
			"flagged", summary.Flagged)
		return
	}

	sched := scheduler.New(cfg.Location())
	cli.RegisterRecurringJob(sched, cfg, processor)

	ctx, done := cli.GracefulShutdown(30*time.Second, func(ctx context.Context) {
		if err := sched.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown failed", "error", err)
		}
	})

	sched.Start()
	logger.Info("Running initial recurring sweep")
	_ = sched.RunNow(ctx, cli.RecurringJobName)
	logger.Info("Next recurring sweep scheduled", "at", sched.Next(cli.RecurringJobName))

	cli.WaitForShutdown(ctx, done)
}
