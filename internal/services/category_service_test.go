package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"outlay/internal/core"
)

func TestCategoryService_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())
	ctx := context.Background()

	for _, name := range []string{"groceries", "rent", "fun"} {
		if _, err := svc.CreateCategory(ctx, user.ID, name); err != nil {
			t.Fatalf("CreateCategory(%s): %v", name, err)
		}
	}

	categories, err := svc.ListCategories(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(categories) != 3 {
		t.Fatalf("categories = %d, want 3", len(categories))
	}
	// Listing is ordered by name.
	if categories[0].Name != "fun" || categories[2].Name != "rent" {
		t.Errorf("unexpected order: %s, %s, %s", categories[0].Name, categories[1].Name, categories[2].Name)
	}
}

func TestCategoryService_DuplicateName(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())
	ctx := context.Background()

	if _, err := svc.CreateCategory(ctx, user.ID, "groceries"); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	if _, err := svc.CreateCategory(ctx, user.ID, "groceries"); !errors.Is(err, core.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}

	// The same name under another user is fine.
	bob := seedUser(t, repo, "bob", "tok-bob")
	if _, err := svc.CreateCategory(ctx, bob.ID, "groceries"); err != nil {
		t.Errorf("same name for another user should succeed, got %v", err)
	}
}

func TestCategoryService_CreateValidation(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())

	if _, err := svc.CreateCategory(context.Background(), user.ID, "   "); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestCategoryService_Rename(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())
	ctx := context.Background()

	created, err := svc.CreateCategory(ctx, user.ID, "grocries")
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	renamed, err := svc.RenameCategory(ctx, user.ID, created.ID, "groceries")
	if err != nil {
		t.Fatalf("RenameCategory: %v", err)
	}
	if renamed.Name != "groceries" {
		t.Errorf("renamed to %q, want %q", renamed.Name, "groceries")
	}

	if _, err := svc.RenameCategory(ctx, user.ID, uuid.New(), "whatever"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestCategoryService_DeleteBlockedWhileInUse(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())
	ctx := context.Background()

	category := seedCategory(t, repo, user.ID, "groceries")
	expense := seedExpense(t, repo, user.ID, category.ID, 1500, core.NewDate(2024, 3, 5))

	if err := svc.DeleteCategory(ctx, user.ID, category.ID); !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}

	// Soft-deleting the expense frees the category.
	if err := repo.DeleteExpense(ctx, user.ID, expense.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if err := svc.DeleteCategory(ctx, user.ID, category.ID); err != nil {
		t.Fatalf("DeleteCategory after freeing: %v", err)
	}

	if _, err := svc.GetCategory(ctx, user.ID, category.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCategoryService_DeleteUnknown(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	svc := NewCategoryService(repo, newTestLogger())

	if err := svc.DeleteCategory(context.Background(), user.ID, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
