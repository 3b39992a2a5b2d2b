// Package worker runs the export pipeline out of process. The durable
// queue in SQLite is the source of truth; AMQP events only shorten the
// wait until the next batch, so a lost message costs latency, not data.
package worker

import (
	"context"
	"fmt"

	"outlay/internal/amqp"
	"outlay/internal/log"
	"outlay/internal/services"
)

// ExportWorker bridges AMQP export events to the export processor.
type ExportWorker struct {
	client    *amqp.Client
	processor *services.ExportProcessor
	logger    *log.Logger
}

func NewExportWorker(client *amqp.Client, processor *services.ExportProcessor, logger *log.Logger) *ExportWorker {
	return &ExportWorker{
		client:    client,
		processor: processor,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleExportEvent runs one batch in response to an event. The batch
// picks up whatever is pending, the event's expense included, so
// duplicate or reordered deliveries are harmless.
func (w *ExportWorker) HandleExportEvent(ctx context.Context, msg *amqp.ExportMessage) error {
	w.logger.DebugContext(ctx, "export event received",
		log.FieldExpenseID, msg.ExpenseID,
		log.FieldOperation, msg.Operation)

	w.processor.ProcessBatch(ctx)
	return nil
}

// StartupDrain catches up on items enqueued while the worker was down.
// It processes batches until the pending pool is empty or stops shrinking;
// stalled items are left to the poll loop's retry cadence.
func (w *ExportWorker) StartupDrain(ctx context.Context) error {
	last := int64(-1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := w.processor.Stats(ctx)
		if err != nil {
			return fmt.Errorf("export queue stats: %w", err)
		}
		if stats.Pending == 0 {
			w.logger.InfoContext(ctx, "export queue drained",
				"completed", stats.Completed,
				"failed", stats.Failed)
			return nil
		}
		if last >= 0 && stats.Pending >= last {
			w.logger.WarnContext(ctx, "export queue drain made no progress, deferring to poll loop",
				"pending", stats.Pending,
				"failed", stats.Failed)
			return nil
		}
		last = stats.Pending

		w.logger.InfoContext(ctx, "draining export queue", "pending", stats.Pending)
		w.processor.ProcessBatch(ctx)
	}
}

// Run consumes export events until ctx ends. Callers keep the processor's
// own poll loop running alongside as the retry and recovery path.
func (w *ExportWorker) Run(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("run export worker: no AMQP client configured")
	}
	return w.client.ConsumeExportEvents(ctx, func(msg *amqp.ExportMessage) error {
		return w.HandleExportEvent(ctx, msg)
	})
}
