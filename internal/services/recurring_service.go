package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// RecurringService manages recurring expense templates. Templates only
// describe future expenses; materializing them is the scheduler's job.
type RecurringService struct {
	storage *storage.SQLiteRepository
	logger  *log.Logger
}

func NewRecurringService(repo *storage.SQLiteRepository, logger *log.Logger) *RecurringService {
	return &RecurringService{
		storage: repo,
		logger:  logger.WithComponent(log.ComponentRecurring),
	}
}

// CreateTemplate validates and stores a new recurring expense template.
func (s *RecurringService) CreateTemplate(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	if re.ID == uuid.Nil {
		re.ID = uuid.New()
	}
	re.Active = true
	if err := re.Validate(); err != nil {
		return core.RecurringExpense{}, err
	}

	if _, err := s.storage.CategoryByID(ctx, re.UserID, re.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.RecurringExpense{}, fmt.Errorf("category %s: %w", re.CategoryID, core.ErrNotFound)
		}
		return core.RecurringExpense{}, err
	}

	created, err := s.storage.CreateRecurringExpense(ctx, re)
	if err != nil {
		return core.RecurringExpense{}, err
	}

	s.logger.InfoContext(ctx, "recurring template created",
		"recurring_id", created.ID.String(),
		log.FieldUserID, created.UserID.String(),
		"frequency", string(created.Every))
	return created, nil
}

// GetTemplate returns one template owned by the user.
func (s *RecurringService) GetTemplate(ctx context.Context, userID, id uuid.UUID) (core.RecurringExpense, error) {
	return s.storage.RecurringExpenseByID(ctx, userID, id)
}

// ListTemplates returns the user's templates, active or not.
func (s *RecurringService) ListTemplates(ctx context.Context, userID uuid.UUID) ([]core.RecurringExpense, error) {
	return s.storage.ListRecurringExpenses(ctx, userID)
}

// SetActive pauses or resumes a template.
func (s *RecurringService) SetActive(ctx context.Context, userID, id uuid.UUID, active bool) error {
	if err := s.storage.SetRecurringActive(ctx, userID, id, active); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "recurring template toggled",
		"recurring_id", id.String(),
		log.FieldUserID, userID.String(),
		"active", active)
	return nil
}
