package services

import (
	"context"
	"fmt"
	"time"

	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// RecurringProcessor materializes expenses from due recurring templates.
// Created expenses go through the normal expense service, so they are
// cache-invalidated and export-queued like hand-entered ones.
type RecurringProcessor struct {
	storage  *storage.SQLiteRepository
	expenses *ExpenseService
	logger   *log.Logger
}

func NewRecurringProcessor(repo *storage.SQLiteRepository, expenses *ExpenseService, logger *log.Logger) *RecurringProcessor {
	return &RecurringProcessor{
		storage:  repo,
		expenses: expenses,
		logger:   logger.WithComponent(log.ComponentRecurring),
	}
}

// ProcessDueExpenses runs one pass over every active template and creates
// an expense for each one that is due at now. Returns how many fired.
// Individual template failures are logged and skipped so one broken
// template cannot starve the rest.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.expenses == nil {
		return 0, fmt.Errorf("recurring processor not properly initialized")
	}

	templates, err := p.storage.ListActiveRecurringExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurring expenses: %w", err)
	}

	today := core.NewDate(now.Year(), int(now.Month()), now.Day())
	p.logger.InfoContext(ctx, "processing recurring expenses",
		"total_active", len(templates),
		"processing_date", today.String())

	processed := 0
	for _, re := range templates {
		due, err := p.isDue(re, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "dueness check failed",
				"recurring_id", re.ID.String(), log.FieldError, err.Error())
			continue
		}
		if !due {
			continue
		}

		expense := core.Expense{
			Description: re.Description,
			Amount:      re.Amount,
			CategoryID:  re.CategoryID,
			OccurredOn:  today,
			UserID:      re.UserID,
		}
		created, err := p.expenses.CreateExpense(ctx, expense)
		if err != nil {
			p.logger.ErrorContext(ctx, "create expense from template",
				"recurring_id", re.ID.String(),
				log.FieldError, err.Error())
			continue
		}

		if err := p.storage.MarkRecurringRun(ctx, re.ID, today); err != nil {
			// Expense exists; a stale last-run only risks a duplicate on
			// the next pass.
			p.logger.ErrorContext(ctx, "mark recurring run",
				"recurring_id", re.ID.String(),
				log.FieldError, err.Error())
		}

		processed++
		p.logger.InfoContext(ctx, "created expense from recurring template",
			"recurring_id", re.ID.String(),
			log.FieldExpenseID, created.ID.String(),
			log.FieldAmountCents, created.Amount.Cents,
			"frequency", string(re.Every))
	}

	p.logger.InfoContext(ctx, "recurring expense processing complete",
		"processed", processed,
		"total_checked", len(templates))

	return processed, nil
}

// isDue applies the template's window and frequency strategy.
func (p *RecurringProcessor) isDue(re core.RecurringExpense, now time.Time) (bool, error) {
	// Not started yet, or already past its end date.
	if now.Before(re.StartDate.Time) {
		return false, nil
	}
	if !re.EndDate.IsEmpty() && now.After(re.EndDate.Time.AddDate(0, 0, 1)) {
		return false, nil
	}

	checker, err := GetDuenessChecker(re.Every)
	if err != nil {
		return false, err
	}
	return checker.IsDue(re.LastRunOn.Time, now, re.StartDate), nil
}
