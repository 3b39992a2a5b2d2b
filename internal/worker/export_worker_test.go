package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"outlay/internal/amqp"
	"outlay/internal/core"
	"outlay/internal/export"
	"outlay/internal/export/memory"
	"outlay/internal/log"
	"outlay/internal/services"
	"outlay/internal/storage"
)

func newTestLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

type fixture struct {
	repo   *storage.SQLiteRepository
	dest   *memory.Store
	worker *ExportWorker
	userID uuid.UUID
	catID  uuid.UUID
}

func newFixture(t *testing.T, dest export.Destination, config services.ExportProcessorConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "outlay-test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	user, err := repo.UpsertUser(ctx, "alice", "tok-alice")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	cat, err := repo.CreateCategory(ctx, core.Category{ID: uuid.New(), Name: "groceries", UserID: user.ID})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}

	mem, _ := dest.(*memory.Store)
	processor := services.NewExportProcessor(repo, dest, config, newTestLogger())
	return &fixture{
		repo:   repo,
		dest:   mem,
		worker: NewExportWorker(nil, processor, newTestLogger()),
		userID: user.ID,
		catID:  cat.ID,
	}
}

func (f *fixture) enqueueExpense(t *testing.T, cents int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	e, err := f.repo.CreateExpense(ctx, core.Expense{
		ID:          uuid.New(),
		Description: "test expense",
		Amount:      core.Money{Cents: cents},
		CategoryID:  f.catID,
		OccurredOn:  core.NewDate(2024, 3, 5),
		UserID:      f.userID,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if err := f.repo.EnqueueExport(ctx, e.ID, export.OpAppend); err != nil {
		t.Fatalf("enqueue export: %v", err)
	}
	return e.ID
}

func TestHandleExportEventProcessesPending(t *testing.T) {
	f := newFixture(t, memory.New(), services.DefaultExportProcessorConfig())
	ctx := context.Background()
	id := f.enqueueExpense(t, 2500)

	msg := amqp.NewExportMessage(id.String(), f.userID.String(), export.OpAppend)
	if err := f.worker.HandleExportEvent(ctx, msg); err != nil {
		t.Fatalf("HandleExportEvent: %v", err)
	}

	rows := f.dest.Rows()
	if len(rows) != 1 || rows[0].ExpenseID != id.String() {
		t.Fatalf("rows = %+v, want the enqueued expense", rows)
	}
	stats, err := f.repo.ExportQueueStats(ctx)
	if err != nil {
		t.Fatalf("ExportQueueStats: %v", err)
	}
	if stats.Pending != 0 || stats.Completed != 1 {
		t.Errorf("stats = %+v, want item completed", stats)
	}
}

func TestStartupDrainEmptiesQueue(t *testing.T) {
	config := services.DefaultExportProcessorConfig()
	config.BatchSize = 1 // force several drain iterations
	f := newFixture(t, memory.New(), config)
	ctx := context.Background()

	for _, cents := range []int64{100, 200, 300} {
		f.enqueueExpense(t, cents)
	}

	if err := f.worker.StartupDrain(ctx); err != nil {
		t.Fatalf("StartupDrain: %v", err)
	}

	if got := len(f.dest.Rows()); got != 3 {
		t.Errorf("exported rows = %d, want 3", got)
	}
	stats, _ := f.repo.ExportQueueStats(ctx)
	if stats.Pending != 0 || stats.Completed != 3 {
		t.Errorf("stats = %+v, want everything completed", stats)
	}
}

type brokenDestination struct{}

func (brokenDestination) Append(context.Context, export.Row) (string, error) {
	return "", errors.New("destination down")
}

func (brokenDestination) Delete(context.Context, export.Row) error {
	return errors.New("destination down")
}

func TestStartupDrainStopsWhenStalled(t *testing.T) {
	config := services.DefaultExportProcessorConfig()
	config.MaxRetries = 10 // keep items bouncing back to pending
	f := newFixture(t, brokenDestination{}, config)
	ctx := context.Background()

	f.enqueueExpense(t, 100)
	f.enqueueExpense(t, 200)

	done := make(chan error, 1)
	go func() { done <- f.worker.StartupDrain(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StartupDrain: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("StartupDrain did not give up on a stalled queue")
	}

	stats, _ := f.repo.ExportQueueStats(ctx)
	if stats.Pending != 2 {
		t.Errorf("stats = %+v, want both items still pending", stats)
	}
}

func TestStartupDrainEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t, memory.New(), services.DefaultExportProcessorConfig())
	if err := f.worker.StartupDrain(context.Background()); err != nil {
		t.Fatalf("StartupDrain on empty queue: %v", err)
	}
}

func TestRunRequiresClient(t *testing.T) {
	f := newFixture(t, memory.New(), services.DefaultExportProcessorConfig())
	if err := f.worker.Run(context.Background()); err == nil {
		t.Fatal("Run without an AMQP client should fail")
	}
}
