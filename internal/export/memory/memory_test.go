package memory

import (
	"context"
	"testing"

	"outlay/internal/export"
)

func TestAppendAndRows(t *testing.T) {
	store := New()

	ref, err := store.Append(context.Background(), export.Row{
		ExpenseID:   "e1",
		Username:    "alice",
		OccurredOn:  "2024-06-15",
		Description: "groceries",
		AmountCents: 1250,
		Category:    "Food",
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("expected ref mem:1, got %q", ref)
	}

	store.Append(context.Background(), export.Row{ExpenseID: "e2", OccurredOn: "2024-06-16"})

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ExpenseID != "e1" || rows[1].ExpenseID != "e2" {
		t.Errorf("expected append order preserved, got %v", rows)
	}
}

func TestAppendRejectsEmptyID(t *testing.T) {
	store := New()
	if _, err := store.Append(context.Background(), export.Row{}); err == nil {
		t.Fatal("expected error for empty expense id")
	}
}

func TestAppendSameIDOverwrites(t *testing.T) {
	store := New()
	store.Append(context.Background(), export.Row{ExpenseID: "e1", Description: "old"})
	store.Append(context.Background(), export.Row{ExpenseID: "e1", Description: "new"})

	rows := store.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Description != "new" {
		t.Errorf("expected overwritten row, got %q", rows[0].Description)
	}
}

func TestDelete(t *testing.T) {
	store := New()
	store.Append(context.Background(), export.Row{ExpenseID: "e1"})
	store.Append(context.Background(), export.Row{ExpenseID: "e2"})

	if err := store.Delete(context.Background(), export.Row{ExpenseID: "e1"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 || rows[0].ExpenseID != "e2" {
		t.Errorf("expected only e2 to remain, got %v", rows)
	}
	deleted := store.Deleted()
	if len(deleted) != 1 || deleted[0] != "e1" {
		t.Errorf("expected deleted list [e1], got %v", deleted)
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	store := New()
	if err := store.Delete(context.Background(), export.Row{ExpenseID: "ghost"}); err != nil {
		t.Fatalf("expected no error deleting unknown row, got %v", err)
	}
	if len(store.Deleted()) != 0 {
		t.Error("expected no recorded deletions")
	}
}
