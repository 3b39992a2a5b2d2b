// The export worker: consumes AMQP export events and drains the durable
// export queue into the configured destination. The queue in SQLite is
// authoritative; losing the broker only delays exports until the next
// poll.
package main

import (
	"context"
	"errors"
	"os"

	"outlay/internal/amqp"
	"outlay/internal/cli"
	"outlay/internal/log"
	"outlay/internal/services"
	"outlay/internal/worker"
)

func main() {
	cfg, logger := cli.Setup()
	logger.Info("starting outlay-worker")

	if cfg.ExportBackend == "" || cfg.ExportBackend == "none" {
		logger.Error("EXPORT_BACKEND is none, nothing for the worker to do")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL not set; without a broker the server exports in-process and no worker is needed")
		os.Exit(1)
	}

	repo := cli.OpenStorage(cfg, logger)
	defer repo.Close()

	ctx, stop := cli.NotifyShutdown()
	defer stop()

	dest, err := cli.NewExportDestination(ctx, cfg, logger)
	if err != nil {
		logger.Error("build export destination", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("export destination ready", "backend", cfg.ExportBackend)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("connect AMQP", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	processorCfg := services.DefaultExportProcessorConfig()
	processorCfg.PollInterval = cfg.ExportInterval
	processorCfg.BatchSize = cfg.ExportBatchSize
	processorCfg.Parallelism = cfg.ExportParallelism

	processor := services.NewExportProcessor(repo, dest, processorCfg, logger)
	exportWorker := worker.NewExportWorker(amqpClient, processor, logger)

	// Catch up on anything enqueued while the worker was down, then let
	// the poll loop own retries and the consumer own latency.
	if err := exportWorker.StartupDrain(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("startup drain", log.FieldError, err.Error())
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("start export processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- exportWorker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consume export events", log.FieldError, err.Error())
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		logger.Error("stop export processor", log.FieldError, err.Error())
	}
	logger.Info("stopped")
}
