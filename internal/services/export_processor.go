package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"outlay/internal/export"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// ExportProcessorConfig holds configuration for the export processor.
type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// Parallelism bounds how many expenses are exported concurrently (default: 4)
	Parallelism int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults.
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		Parallelism:     4,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// ExportProcessor drains the export queue into a destination. It polls
// on an interval; an AMQP event shortcuts the wait by triggering
// ProcessBatch directly.
type ExportProcessor struct {
	storage *storage.SQLiteRepository
	dest    export.Destination
	config  ExportProcessorConfig
	logger  *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewExportProcessor creates an export processor.
func NewExportProcessor(
	repo *storage.SQLiteRepository,
	dest export.Destination,
	config ExportProcessorConfig,
	logger *log.Logger,
) *ExportProcessor {
	return &ExportProcessor{
		storage: repo,
		dest:    dest,
		config:  config,
		logger:  logger.WithComponent(log.ComponentExport),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items left in 'processing' by a previous crash go back to pending.
	if err := p.storage.ResetStaleExports(ctx); err != nil {
		p.logger.WarnContext(ctx, "reset stale export items", log.FieldError, err.Error())
	}

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"parallelism", p.config.Parallelism)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "export processor stopped")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running.
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch drains one batch of pending queue items. Items for the
// same expense run in queue order; distinct expenses run concurrently,
// bounded by Parallelism. Failures are retried on later batches and
// never abort the rest of the current one.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) {
	items, err := p.storage.DequeueExportBatch(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "dequeue export batch", log.FieldError, err.Error())
		return
	}
	if len(items) == 0 {
		return
	}

	p.logger.DebugContext(ctx, "processing export batch", "count", len(items))

	groups := make(map[string][]storage.ExportQueueItem, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := groups[item.ExpenseID]; !seen {
			order = append(order, item.ExpenseID)
		}
		groups[item.ExpenseID] = append(groups[item.ExpenseID], item)
	}

	limit := p.config.Parallelism
	if limit <= 0 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, expenseID := range order {
		group := groups[expenseID]
		g.Go(func() error {
			for _, item := range group {
				select {
				case <-p.stopCh:
					return nil
				case <-ctx.Done():
					return nil
				default:
				}
				p.processItem(ctx, item)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *ExportProcessor) processItem(ctx context.Context, item storage.ExportQueueItem) {
	if err := p.storage.MarkExportProcessing(ctx, item.ID); err != nil {
		p.logger.ErrorContext(ctx, "mark export processing",
			"id", item.ID, log.FieldError, err.Error())
		return
	}

	if err := p.exportItem(ctx, item); err != nil {
		p.handleFailure(ctx, item, err)
		return
	}
	p.handleSuccess(ctx, item)
}

// exportItem pushes one queue item to the destination.
func (p *ExportProcessor) exportItem(ctx context.Context, item storage.ExportQueueItem) error {
	row, err := p.storage.ExportRowFor(ctx, item.ExpenseID)
	if err != nil {
		return fmt.Errorf("load export row %s: %w", item.ExpenseID, err)
	}

	destRow := export.Row{
		ExpenseID:   row.ID,
		Username:    row.Username,
		OccurredOn:  row.OccurredOn,
		Description: row.Description,
		AmountCents: row.AmountCents,
		Category:    row.CategoryName,
	}

	switch item.Operation {
	case export.OpAppend:
		// An append queued before the expense was deleted must not
		// resurrect the mirrored row.
		if row.Deleted {
			p.logger.DebugContext(ctx, "skipping append of deleted expense",
				log.FieldExpenseID, item.ExpenseID)
			return nil
		}
		ref, err := p.dest.Append(ctx, destRow)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		if err := p.storage.MarkExported(ctx, item.ExpenseID); err != nil {
			// The export itself succeeded; only the status flag is stale.
			p.logger.WarnContext(ctx, "mark expense exported",
				log.FieldExpenseID, item.ExpenseID, log.FieldError, err.Error())
		}
		p.logger.InfoContext(ctx, "expense exported",
			log.FieldExpenseID, item.ExpenseID, log.FieldExportRef, ref)
		return nil

	case export.OpDelete:
		if err := p.dest.Delete(ctx, destRow); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		p.logger.InfoContext(ctx, "expense removed from export",
			log.FieldExpenseID, item.ExpenseID)
		return nil

	default:
		return fmt.Errorf("unknown operation: %s", item.Operation)
	}
}

func (p *ExportProcessor) handleSuccess(ctx context.Context, item storage.ExportQueueItem) {
	if err := p.storage.MarkExportCompleted(ctx, item.ID); err != nil {
		p.logger.ErrorContext(ctx, "mark export completed",
			"id", item.ID, log.FieldError, err.Error())
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, item storage.ExportQueueItem, processErr error) {
	p.logger.WarnContext(ctx, "export processing failed",
		"id", item.ID,
		log.FieldOperation, item.Operation,
		"attempt", item.Attempts+1,
		log.FieldError, processErr.Error())

	if item.Attempts+1 >= int64(p.config.MaxRetries) {
		if err := p.storage.MarkExportFailed(ctx, item.ID, processErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "mark export failed",
				"id", item.ID, log.FieldError, err.Error())
		}

		if item.Operation == export.OpAppend {
			if err := p.storage.MarkExportError(ctx, item.ExpenseID); err != nil {
				p.logger.ErrorContext(ctx, "mark expense export error",
					log.FieldExpenseID, item.ExpenseID, log.FieldError, err.Error())
			}
		}

		p.logger.ErrorContext(ctx, "export item failed permanently",
			"id", item.ID,
			log.FieldExpenseID, item.ExpenseID,
			"attempts", item.Attempts+1)
		return
	}

	if err := p.storage.IncrementExportAttempt(ctx, item.ID, processErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "increment export attempt",
			"id", item.ID, log.FieldError, err.Error())
	}
}

// cleanupCompleted removes completed items older than CleanupAge.
func (p *ExportProcessor) cleanupCompleted(ctx context.Context) {
	if err := p.storage.CleanupCompletedExports(ctx, p.config.CleanupAge); err != nil {
		p.logger.ErrorContext(ctx, "cleanup completed exports", log.FieldError, err.Error())
	}
}

// Stats returns current queue statistics.
func (p *ExportProcessor) Stats(ctx context.Context) (storage.ExportQueueStats, error) {
	return p.storage.ExportQueueStats(ctx)
}

// RetryFailed resets all failed items for another round of attempts.
func (p *ExportProcessor) RetryFailed(ctx context.Context) error {
	return p.storage.RetryFailedExports(ctx)
}
