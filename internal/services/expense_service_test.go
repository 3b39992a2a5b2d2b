package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"outlay/internal/core"
	"outlay/internal/export"
	"outlay/internal/storage"
)

func newExpenseFixture(t *testing.T) (*ExpenseService, *storage.SQLiteRepository, *recordingInvalidator, core.User, core.Category) {
	t.Helper()
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	category := seedCategory(t, repo, user.ID, "groceries")
	invalidator := newRecordingInvalidator()
	svc := NewExpenseService(repo, invalidator, nil, true, newTestLogger())
	return svc, repo, invalidator, user, category
}

func TestExpenseService_CreateExpense(t *testing.T) {
	svc, repo, invalidator, user, category := newExpenseFixture(t)
	ctx := context.Background()

	created, err := svc.CreateExpense(ctx, core.Expense{
		Description: "weekly shop",
		Amount:      core.Money{Cents: 4250},
		CategoryID:  category.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("expected a generated expense id")
	}

	got, err := svc.GetExpense(ctx, user.ID, created.ID)
	if err != nil {
		t.Fatalf("GetExpense after create: %v", err)
	}
	if got.Amount.Cents != 4250 {
		t.Errorf("stored amount = %d, want 4250", got.Amount.Cents)
	}

	if invalidator.calls[user.ID] != 1 {
		t.Errorf("invalidations for user = %d, want 1", invalidator.calls[user.ID])
	}

	items, err := repo.DequeueExportBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueExportBatch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("export queue length = %d, want 1", len(items))
	}
	if items[0].ExpenseID != created.ID.String() || items[0].Operation != export.OpAppend {
		t.Errorf("queued %s/%s, want %s/%s", items[0].ExpenseID, items[0].Operation, created.ID, export.OpAppend)
	}
}

func TestExpenseService_CreateExpenseUnknownCategory(t *testing.T) {
	svc, _, _, user, _ := newExpenseFixture(t)

	_, err := svc.CreateExpense(context.Background(), core.Expense{
		Description: "orphan",
		Amount:      core.Money{Cents: 100},
		CategoryID:  uuid.New(),
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown category, got %v", err)
	}
}

func TestExpenseService_CreateExpenseOtherUsersCategory(t *testing.T) {
	svc, repo, _, _, _ := newExpenseFixture(t)
	bob := seedUser(t, repo, "bob", "tok-bob")
	bobCategory := seedCategory(t, repo, bob.ID, "travel")

	alice := seedUser(t, repo, "alice2", "tok-alice2")
	_, err := svc.CreateExpense(context.Background(), core.Expense{
		Description: "cross-tenant",
		Amount:      core.Money{Cents: 100},
		CategoryID:  bobCategory.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      alice.ID,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user's category, got %v", err)
	}
}

func TestExpenseService_CreateExpenseValidation(t *testing.T) {
	svc, _, invalidator, user, category := newExpenseFixture(t)

	tests := []struct {
		name    string
		expense core.Expense
		wantErr error
	}{
		{
			name: "empty description",
			expense: core.Expense{
				Description: "   ",
				Amount:      core.Money{Cents: 100},
				CategoryID:  category.ID,
				OccurredOn:  core.NewDate(2024, 3, 5),
				UserID:      user.ID,
			},
			wantErr: core.ErrEmptyDescription,
		},
		{
			name: "negative amount",
			expense: core.Expense{
				Description: "refund",
				Amount:      core.Money{Cents: -100},
				CategoryID:  category.ID,
				OccurredOn:  core.NewDate(2024, 3, 5),
				UserID:      user.ID,
			},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name: "missing category",
			expense: core.Expense{
				Description: "no bucket",
				Amount:      core.Money{Cents: 100},
				OccurredOn:  core.NewDate(2024, 3, 5),
				UserID:      user.ID,
			},
			wantErr: core.ErrMissingCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateExpense(context.Background(), tt.expense)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateExpense error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(invalidator.calls) != 0 {
		t.Error("validation failures must not invalidate caches")
	}
}

func TestExpenseService_UpdateExpense(t *testing.T) {
	svc, repo, invalidator, user, category := newExpenseFixture(t)
	ctx := context.Background()

	created, err := svc.CreateExpense(ctx, core.Expense{
		Description: "lunch",
		Amount:      core.Money{Cents: 1200},
		CategoryID:  category.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	created.Amount = core.Money{Cents: 1350}
	updated, err := svc.UpdateExpense(ctx, created)
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if updated.Amount.Cents != 1350 {
		t.Errorf("updated amount = %d, want 1350", updated.Amount.Cents)
	}

	if invalidator.calls[user.ID] != 2 {
		t.Errorf("invalidations = %d, want 2 (create + update)", invalidator.calls[user.ID])
	}

	items, err := repo.DequeueExportBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueExportBatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("export queue length = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Operation != export.OpAppend {
			t.Errorf("operation = %s, want %s", item.Operation, export.OpAppend)
		}
	}
}

func TestExpenseService_UpdateUnknownExpense(t *testing.T) {
	svc, _, _, user, category := newExpenseFixture(t)

	_, err := svc.UpdateExpense(context.Background(), core.Expense{
		ID:          uuid.New(),
		Description: "ghost",
		Amount:      core.Money{Cents: 100},
		CategoryID:  category.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExpenseService_DeleteExpense(t *testing.T) {
	svc, repo, invalidator, user, category := newExpenseFixture(t)
	ctx := context.Background()

	created, err := svc.CreateExpense(ctx, core.Expense{
		Description: "to remove",
		Amount:      core.Money{Cents: 900},
		CategoryID:  category.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	if err := svc.DeleteExpense(ctx, user.ID, created.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}

	if _, err := svc.GetExpense(ctx, user.ID, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if invalidator.calls[user.ID] != 2 {
		t.Errorf("invalidations = %d, want 2 (create + delete)", invalidator.calls[user.ID])
	}

	items, err := repo.DequeueExportBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueExportBatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("export queue length = %d, want 2", len(items))
	}
	if items[1].Operation != export.OpDelete {
		t.Errorf("second operation = %s, want %s", items[1].Operation, export.OpDelete)
	}
}

func TestExpenseService_DeleteUnknownExpense(t *testing.T) {
	svc, _, _, user, _ := newExpenseFixture(t)

	err := svc.DeleteExpense(context.Background(), user.ID, uuid.New())
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExpenseService_ExportDisabledSkipsQueue(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, "alice", "tok-alice")
	category := seedCategory(t, repo, user.ID, "groceries")
	svc := NewExpenseService(repo, nil, nil, false, newTestLogger())
	ctx := context.Background()

	if _, err := svc.CreateExpense(ctx, core.Expense{
		Description: "local only",
		Amount:      core.Money{Cents: 700},
		CategoryID:  category.ID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      user.ID,
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	items, err := repo.DequeueExportBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueExportBatch: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("export queue length = %d, want 0 with export disabled", len(items))
	}
}

func TestExpenseService_ListExpensesFilter(t *testing.T) {
	svc, repo, _, user, category := newExpenseFixture(t)
	other := seedCategory(t, repo, user.ID, "transport")
	ctx := context.Background()

	seedExpense(t, repo, user.ID, category.ID, 1000, core.NewDate(2024, 1, 5))
	seedExpense(t, repo, user.ID, category.ID, 2000, core.NewDate(2024, 2, 5))
	seedExpense(t, repo, user.ID, other.ID, 3000, core.NewDate(2024, 1, 20))

	january, err := svc.ListExpenses(ctx, user.ID, storage.ExpenseFilter{
		Start: core.NewDate(2024, 1, 1),
		End:   core.NewDate(2024, 1, 31),
	})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(january) != 2 {
		t.Errorf("january expenses = %d, want 2", len(january))
	}

	transport, err := svc.ListExpenses(ctx, user.ID, storage.ExpenseFilter{CategoryID: other.ID})
	if err != nil {
		t.Fatalf("ListExpenses by category: %v", err)
	}
	if len(transport) != 1 || transport[0].Amount.Cents != 3000 {
		t.Errorf("transport filter returned %d rows, want the single 3000c expense", len(transport))
	}
}
