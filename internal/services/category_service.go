package services

import (
	"context"

	"github.com/google/uuid"

	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// CategoryService manages a user's expense buckets. Deleting a category
// that still has live expenses is refused with core.ErrCategoryInUse.
type CategoryService struct {
	storage *storage.SQLiteRepository
	logger  *log.Logger
}

func NewCategoryService(repo *storage.SQLiteRepository, logger *log.Logger) *CategoryService {
	return &CategoryService{
		storage: repo,
		logger:  logger.WithComponent(log.ComponentCategory),
	}
}

// CreateCategory stores a new category for the user. Names are unique
// per user; a clash surfaces as core.ErrDuplicateName.
func (s *CategoryService) CreateCategory(ctx context.Context, userID uuid.UUID, name string) (core.Category, error) {
	c := core.Category{
		ID:     uuid.New(),
		Name:   name,
		UserID: userID,
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	created, err := s.storage.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}

	s.logger.InfoContext(ctx, "category created",
		log.FieldCategoryID, created.ID.String(),
		log.FieldUserID, userID.String())
	return created, nil
}

// GetCategory returns one category owned by the user.
func (s *CategoryService) GetCategory(ctx context.Context, userID, id uuid.UUID) (core.Category, error) {
	return s.storage.CategoryByID(ctx, userID, id)
}

// ListCategories returns the user's categories ordered by name.
func (s *CategoryService) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	return s.storage.ListCategories(ctx, userID)
}

// RenameCategory changes a category's name. Totals keyed by category id
// are unaffected, so no cached trends need to be dropped.
func (s *CategoryService) RenameCategory(ctx context.Context, userID, id uuid.UUID, name string) (core.Category, error) {
	probe := core.Category{ID: id, Name: name, UserID: userID}
	if err := probe.Validate(); err != nil {
		return core.Category{}, err
	}

	renamed, err := s.storage.RenameCategory(ctx, userID, id, name)
	if err != nil {
		return core.Category{}, err
	}

	s.logger.InfoContext(ctx, "category renamed",
		log.FieldCategoryID, id.String(),
		log.FieldUserID, userID.String())
	return renamed, nil
}

// DeleteCategory removes an empty category. core.ErrCategoryInUse means
// live expenses still reference it and nothing was deleted.
func (s *CategoryService) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.storage.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "category deleted",
		log.FieldCategoryID, id.String(),
		log.FieldUserID, userID.String())
	return nil
}
