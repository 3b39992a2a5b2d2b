package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"outlay/internal/cache"
	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

func newTestLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

// newTestRepo opens a throwaway SQLite database with migrations applied.
func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "outlay-test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *storage.SQLiteRepository, username, token string) core.User {
	t.Helper()
	u, err := repo.UpsertUser(context.Background(), username, token)
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func seedCategory(t *testing.T, repo *storage.SQLiteRepository, userID uuid.UUID, name string) core.Category {
	t.Helper()
	c, err := repo.CreateCategory(context.Background(), core.Category{
		ID:     uuid.New(),
		Name:   name,
		UserID: userID,
	})
	if err != nil {
		t.Fatalf("seed category %s: %v", name, err)
	}
	return c
}

func seedExpense(t *testing.T, repo *storage.SQLiteRepository, userID, categoryID uuid.UUID, cents int64, on core.Date) core.Expense {
	t.Helper()
	e, err := repo.CreateExpense(context.Background(), core.Expense{
		ID:          uuid.New(),
		Description: "seeded",
		Amount:      core.Money{Cents: cents},
		CategoryID:  categoryID,
		OccurredOn:  on,
		UserID:      userID,
	})
	if err != nil {
		t.Fatalf("seed expense: %v", err)
	}
	return e
}

// recordingInvalidator counts InvalidateUser calls per user.
type recordingInvalidator struct {
	calls map[uuid.UUID]int
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{calls: make(map[uuid.UUID]int)}
}

func (r *recordingInvalidator) InvalidateUser(userID uuid.UUID) {
	r.calls[userID]++
}

// newTrendCaches builds the three LRU caches a TrendService needs.
func newTrendCaches() (cache.Cache[[]core.CategoryTotal], cache.Cache[[]core.MonthTotal], cache.Cache[[]core.YearTotal]) {
	return cache.NewLRUCache[[]core.CategoryTotal](64, 5*time.Minute),
		cache.NewLRUCache[[]core.MonthTotal](64, 5*time.Minute),
		cache.NewLRUCache[[]core.YearTotal](64, 5*time.Minute)
}
