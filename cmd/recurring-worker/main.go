// The recurring expense scheduler: materializes due templates into real
// expenses once per interval. Created expenses flow through the normal
// expense service, so they are cache-invalidated and export-queued like
// any hand-entered expense.
package main

import (
	"os"
	"time"

	"outlay/internal/amqp"
	"outlay/internal/auth"
	"outlay/internal/cache"
	"outlay/internal/cli"
	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/services"
)

func main() {
	cfg, logger := cli.Setup()
	logger.Info("starting recurring-worker", "interval", cfg.RecurringInterval.String())

	repo := cli.OpenStorage(cfg, logger)
	defer repo.Close()

	ctx, stop := cli.NotifyShutdown()
	defer stop()

	// The trend service is built with the shared cache config so that a
	// Redis-backed deployment sees invalidations from this process too.
	// With the in-process LRU the server's copy simply ages out on TTL.
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
	trends := services.NewTrendService(repo, auth.NewDirectory(repo),
		cache.New[[]core.CategoryTotal](cacheCfg, redisClient),
		cache.New[[]core.MonthTotal](cacheCfg, redisClient),
		cache.New[[]core.YearTotal](cacheCfg, redisClient),
		logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("connect AMQP", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		amqpClient = client
	}

	exportEnabled := cfg.ExportBackend != "" && cfg.ExportBackend != "none"
	expenses := services.NewExpenseService(repo, trends, amqpClient, exportEnabled, logger)
	processor := services.NewRecurringProcessor(repo, expenses, logger)

	run := func(now time.Time) {
		created, err := processor.ProcessDueExpenses(ctx, now)
		if err != nil {
			logger.Error("process due templates", log.FieldError, err.Error())
			return
		}
		if created > 0 {
			logger.Info("materialized recurring expenses", "created", created)
		}
	}

	// Immediate pass, then the ticker cadence.
	run(time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopped")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
