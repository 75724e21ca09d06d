package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/core"
	"expensetracker/internal/graphql"
	apphttp "expensetracker/internal/http"
	applog "expensetracker/internal/log"
	"expensetracker/internal/scheduler"
	"expensetracker/internal/services"
	"expensetracker/internal/session"
	"expensetracker/internal/worker"
)

const (
	statsCacheSize       = 500
	cacheCleanupInterval = time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := cli.SetupLogger(level, applog.ComponentApp)
	logger.Info("Starting expense-tracker", "port", cfg.Port, "recurring_enabled", cfg.RecurringEnabled)

	repo := cli.InitSQLite(cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient := cli.InitAMQP(cfg)

	caches := cache.NewManager()
	statsCache := cache.NewLRUCache[[]core.CategoryStat](statsCacheSize, cfg.CacheTTL)
	caches.Register(statsCache)
	caches.StartCleanup(cacheCleanupInterval)

	transactions := services.NewTransactionService(repo, cli.EventPublisher(amqpClient), statsCache)
	users := services.NewUserService(repo, cfg.BcryptCost)
	templates := services.NewTemplateService(repo, cfg.Location())

	sessionStore, closeSessions := cli.InitSessionStore(context.Background(), cfg, repo)
	defer closeSessions()
	sessions := session.NewManager(sessionStore, session.Options{
		Secret: cfg.SessionSecret,
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.SessionCookieSecure,
	})

	schema, err := graphql.NewSchema(graphql.NewResolver(users, transactions, templates, sessions))
	if err != nil {
		logger.Error("Failed to build GraphQL schema", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		FrontendDist:       cfg.FrontendDist,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Schema:   schema,
		Sessions: sessions,
		Store:    repo,
		Caches:   caches,
		Logger:   logger.WithComponent(applog.ComponentHTTP),
	})

	sched := scheduler.New(cfg.Location())
	if err := sched.AddJob(cli.SessionCleanupJobName, cfg.SessionCleanupSchedule, func(ctx context.Context) error {
		_, err := sessions.PruneExpired(ctx)
		return err
	}); err != nil {
		logger.Error("Failed to schedule session cleanup", "error", err)
		os.Exit(1)
	}
	if cfg.RecurringEnabled {
		processor := services.NewRecurringProcessor(repo, transactions, services.ProcessorConfig{
			Workers:  cfg.RecurringWorkers,
			Location: cfg.Location(),
		})
		cli.RegisterRecurringJob(sched, cfg, processor)
	}

	// Other processes (the standalone recurring worker) publish writes that
	// must drop this instance's cached statistics.
	var events *worker.EventWorker
	if amqpClient != nil {
		events = worker.NewEventWorker(amqpClient, transactions)
	}

	ctx, done := cli.GracefulShutdown(shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}
		if err := sched.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown failed", "error", err)
		}
		if events != nil {
			if err := events.Stop(ctx); err != nil {
				logger.Error("Event worker shutdown failed", "error", err)
			}
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
	})

	sched.Start()
	if cfg.RecurringEnabled {
		// Catch up on occurrences missed while the server was down.
		go func() { _ = sched.RunNow(ctx, cli.RecurringJobName) }()
	}

	if events != nil {
		if err := events.Start(ctx); err != nil {
			logger.Error("Failed to start event worker", "error", err)
		}
	}

	go func() {
		logger.Info("Server ready", "addr", srv.Addr, "graphql", "/graphql")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
