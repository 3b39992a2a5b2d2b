// The outlay server: JSON API plus HTMX UI over one SQLite database.
// Export to the configured destination runs in-process when no AMQP
// broker is configured; with a broker the outlay-worker binary takes
// over and this process only enqueues and publishes.
package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"outlay/internal/amqp"
	"outlay/internal/auth"
	"outlay/internal/cache"
	"outlay/internal/cli"
	"outlay/internal/config"
	"outlay/internal/core"
	apphttp "outlay/internal/http"
	"outlay/internal/log"
	"outlay/internal/middleware/ratelimit"
	"outlay/internal/services"
	"outlay/internal/storage"
	"outlay/internal/uistate"
)

func main() {
	cfg, logger := cli.Setup()
	logger.Info("starting outlay", "port", cfg.Port)

	repo := cli.OpenStorage(cfg, logger)
	defer repo.Close()

	ctx, stop := cli.NotifyShutdown()
	defer stop()

	uiUser := bootstrapUser(ctx, cfg, repo, logger)
	directory := auth.NewDirectory(repo)

	cacheCfg := cache.Config{
		Backend:       cfg.CacheBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL:           cfg.CacheTTL,
	}
	redisClient := cache.ConnectOrFallback(cacheCfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	byCategory := cache.New[[]core.CategoryTotal](cacheCfg, redisClient)
	byMonth := cache.New[[]core.MonthTotal](cacheCfg, redisClient)
	byYear := cache.New[[]core.YearTotal](cacheCfg, redisClient)
	trends := services.NewTrendService(repo, directory, byCategory, byMonth, byYear, logger)

	// Expired LRU entries are swept on a timer; Redis expires its own.
	cacheManager := cache.NewManager()
	for _, c := range []any{byCategory, byMonth, byYear} {
		if cleaner, ok := c.(cache.Cleaner); ok {
			cacheManager.Register(cleaner)
		}
	}
	cacheManager.StartCleanup(time.Minute)
	defer cacheManager.Stop()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("connect AMQP", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		amqpClient = client
		logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	exportEnabled := cfg.ExportBackend != "" && cfg.ExportBackend != "none"
	expenses := services.NewExpenseService(repo, trends, amqpClient, exportEnabled, logger)
	categories := services.NewCategoryService(repo, logger)
	recurring := services.NewRecurringService(repo, logger)

	// Without a broker there is no worker process, so the poll-driven
	// processor runs inside the server.
	if exportEnabled && amqpClient == nil {
		dest, err := cli.NewExportDestination(ctx, cfg, logger)
		if err != nil {
			logger.Error("build export destination", log.FieldError, err.Error())
			os.Exit(1)
		}
		processorCfg := services.DefaultExportProcessorConfig()
		processorCfg.PollInterval = cfg.ExportInterval
		processorCfg.BatchSize = cfg.ExportBatchSize
		processorCfg.Parallelism = cfg.ExportParallelism

		processor := services.NewExportProcessor(repo, dest, processorCfg, logger)
		if err := processor.Start(ctx); err != nil {
			logger.Error("start export processor", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
			defer cancel()
			_ = processor.Stop(stopCtx)
		}()
		logger.Info("in-process export processor started", "backend", cfg.ExportBackend)
	}

	sessions := uistate.NewStore(cfg.SessionTTL)

	server, err := apphttp.NewServer(apphttp.Options{
		Addr:       ":" + cfg.Port,
		Expenses:   expenses,
		Categories: categories,
		Trends:     trends,
		Recurring:  recurring,
		Directory:  directory,
		Sessions:   sessions,
		UIUser:     uiUser,
		Repository: repo,
		Logger:     logger,
		RateLimit:  ratelimit.DefaultConfig(),
	})
	if err != nil {
		logger.Error("build server", log.FieldError, err.Error())
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server stopped", log.FieldError, err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", log.FieldError, err.Error())
	}
	logger.Info("stopped")
}

// bootstrapUser upserts the configured account, or a throwaway default
// when none is configured so the UI still has an identity to act as.
func bootstrapUser(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository, logger *log.Logger) core.User {
	username, token := cfg.BootstrapUsername, cfg.BootstrapToken
	if username == "" {
		username, token = "default", uuid.NewString()
		logger.Warn("no bootstrap user configured, using a default account with a random API token")
	}
	user, err := repo.UpsertUser(ctx, username, token)
	if err != nil {
		logger.Error("bootstrap user", "username", username, log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("bootstrap user ready", "username", user.Username, log.FieldUserID, user.ID.String())
	return user
}
