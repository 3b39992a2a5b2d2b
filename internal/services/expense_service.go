package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"outlay/internal/amqp"
	"outlay/internal/core"
	"outlay/internal/export"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// TrendInvalidator drops a user's cached trend aggregates after a write.
// Implemented by TrendService; a nil invalidator disables invalidation.
type TrendInvalidator interface {
	InvalidateUser(userID uuid.UUID)
}

// ExpenseService is the single write path for expenses. Every mutation
// lands in SQLite first; cache invalidation, the export outbox entry and
// the AMQP nudge are side effects that never fail the request.
type ExpenseService struct {
	storage       *storage.SQLiteRepository
	trends        TrendInvalidator
	amqpClient    *amqp.Client
	exportEnabled bool
	logger        *log.Logger
}

// NewExpenseService creates an expense service. amqpClient may be nil
// (no broker configured); exportEnabled false skips the outbox entirely.
func NewExpenseService(
	repo *storage.SQLiteRepository,
	trends TrendInvalidator,
	amqpClient *amqp.Client,
	exportEnabled bool,
	logger *log.Logger,
) *ExpenseService {
	return &ExpenseService{
		storage:       repo,
		trends:        trends,
		amqpClient:    amqpClient,
		exportEnabled: exportEnabled,
		logger:        logger.WithComponent(log.ComponentExpense),
	}
}

// CreateExpense validates and stores a new expense, then queues it for
// export and drops the owner's cached trends.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}

	created, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	s.logger.InfoContext(ctx, "expense created",
		log.FieldExpenseID, created.ID.String(),
		log.FieldUserID, created.UserID.String(),
		log.FieldAmountCents, created.Amount.Cents)

	s.afterWrite(ctx, created.UserID, created.ID, export.OpAppend)
	return created, nil
}

// UpdateExpense rewrites an existing expense. The export queue gets a
// fresh append; the destination replaces the mirrored row in place.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == uuid.Nil {
		return core.Expense{}, core.ErrNotFound
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.checkCategory(ctx, e.UserID, e.CategoryID); err != nil {
		return core.Expense{}, err
	}

	updated, err := s.storage.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}

	s.logger.InfoContext(ctx, "expense updated",
		log.FieldExpenseID, updated.ID.String(),
		log.FieldUserID, updated.UserID.String())

	s.afterWrite(ctx, updated.UserID, updated.ID, export.OpAppend)
	return updated, nil
}

// DeleteExpense soft-deletes an expense and queues the mirror removal.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.storage.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "expense deleted",
		log.FieldExpenseID, id.String(),
		log.FieldUserID, userID.String())

	s.afterWrite(ctx, userID, id, export.OpDelete)
	return nil
}

// GetExpense returns one expense owned by the user.
func (s *ExpenseService) GetExpense(ctx context.Context, userID, id uuid.UUID) (core.Expense, error) {
	return s.storage.ExpenseByID(ctx, userID, id)
}

// ListExpenses returns the user's expenses, optionally filtered.
func (s *ExpenseService) ListExpenses(ctx context.Context, userID uuid.UUID, filter storage.ExpenseFilter) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, userID, filter)
}

// checkCategory verifies the category exists and belongs to the user.
func (s *ExpenseService) checkCategory(ctx context.Context, userID, categoryID uuid.UUID) error {
	_, err := s.storage.CategoryByID(ctx, userID, categoryID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("category %s: %w", categoryID, core.ErrNotFound)
	}
	return err
}

// afterWrite runs the side effects of a successful mutation: cached
// trends are dropped, and when exporting is on the operation is queued
// and the worker nudged over AMQP. Failures here are logged, never
// returned; the write already committed and the queue poller will catch
// up on anything the nudge missed.
func (s *ExpenseService) afterWrite(ctx context.Context, userID, expenseID uuid.UUID, operation string) {
	if s.trends != nil {
		s.trends.InvalidateUser(userID)
	}

	if !s.exportEnabled {
		return
	}

	if err := s.storage.EnqueueExport(ctx, expenseID, operation); err != nil {
		s.logger.ErrorContext(ctx, "enqueue export",
			log.FieldExpenseID, expenseID.String(),
			log.FieldOperation, operation,
			log.FieldError, err.Error())
		return
	}

	s.publishExportEvent(ctx, expenseID, userID, operation)
}

// publishExportEvent nudges the worker over AMQP. Best effort: without a
// broker, or with the circuit open, the poll loop picks the item up.
func (s *ExpenseService) publishExportEvent(ctx context.Context, expenseID, userID uuid.UUID, operation string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishExportEvent(ctx, expenseID.String(), userID.String(), operation); err != nil {
		s.logger.WarnContext(ctx, "publish export event",
			log.FieldExpenseID, expenseID.String(),
			log.FieldOperation, operation,
			log.FieldError, err.Error())
	}
}
