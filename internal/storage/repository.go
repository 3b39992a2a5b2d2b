package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"outlay/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository owns the database handle and translates between row
// structs and core types. Storage errors surface as core sentinels so
// callers never see driver details.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// translateErr maps driver errors into domain sentinels.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return core.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return core.ErrDuplicateName
	default:
		return err
	}
}

// --- users ---

func toCoreUser(u User) (core.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("parse user id %q: %w", u.ID, err)
	}
	return core.User{ID: id, Username: u.Username}, nil
}

// UpsertUser creates the user or, when the username already exists,
// rotates its token. Used by the bootstrap path at startup.
func (r *SQLiteRepository) UpsertUser(ctx context.Context, username, token string) (core.User, error) {
	row, err := r.queries.UpsertUser(ctx, UpsertUserParams{
		ID:       uuid.NewString(),
		Username: username,
		Token:    token,
	})
	if err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", translateErr(err))
	}
	return toCoreUser(row)
}

func (r *SQLiteRepository) UserByToken(ctx context.Context, token string) (core.User, error) {
	row, err := r.queries.GetUserByToken(ctx, token)
	if err != nil {
		return core.User{}, translateErr(err)
	}
	return toCoreUser(row)
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id uuid.UUID) (core.User, error) {
	row, err := r.queries.GetUserByID(ctx, id.String())
	if err != nil {
		return core.User{}, translateErr(err)
	}
	return toCoreUser(row)
}

// --- categories ---

func toCoreCategory(c Category) (core.Category, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse category id %q: %w", c.ID, err)
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse category user id %q: %w", c.UserID, err)
	}
	return core.Category{ID: id, Name: c.Name, UserID: userID}, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		ID:     c.ID.String(),
		UserID: c.UserID.String(),
		Name:   c.Name,
	})
	if err != nil {
		return core.Category{}, translateErr(err)
	}
	return toCoreCategory(row)
}

func (r *SQLiteRepository) CategoryByID(ctx context.Context, userID, id uuid.UUID) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, GetCategoryParams{ID: id.String(), UserID: userID.String()})
	if err != nil {
		return core.Category{}, translateErr(err)
	}
	return toCoreCategory(row)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := toCoreCategory(row)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, nil
}

func (r *SQLiteRepository) RenameCategory(ctx context.Context, userID, id uuid.UUID, name string) (core.Category, error) {
	row, err := r.queries.RenameCategory(ctx, RenameCategoryParams{
		ID:     id.String(),
		UserID: userID.String(),
		Name:   name,
	})
	if err != nil {
		return core.Category{}, translateErr(err)
	}
	return toCoreCategory(row)
}

// DeleteCategory removes a category. Deletion is blocked with
// ErrCategoryInUse while live expenses still reference it.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	n, err := r.queries.CountExpensesByCategory(ctx, CountExpensesByCategoryParams{
		CategoryID: id.String(),
		UserID:     userID.String(),
	})
	if err != nil {
		return fmt.Errorf("count category expenses: %w", err)
	}
	if n > 0 {
		return core.ErrCategoryInUse
	}

	affected, err := r.queries.DeleteCategory(ctx, DeleteCategoryParams{ID: id.String(), UserID: userID.String()})
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// --- expenses ---

func toCoreExpense(e Expense) (core.Expense, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense id %q: %w", e.ID, err)
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense user id %q: %w", e.UserID, err)
	}
	categoryID, err := uuid.Parse(e.CategoryID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense category id %q: %w", e.CategoryID, err)
	}
	occurred, err := core.ParseDate(e.OccurredOn)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse expense date %q: %w", e.OccurredOn, err)
	}
	return core.Expense{
		ID:          id,
		Description: e.Description,
		Amount:      core.Money{Cents: e.AmountCents},
		CategoryID:  categoryID,
		OccurredOn:  occurred,
		UserID:      userID,
	}, nil
}

func toCoreExpenses(rows []Expense) ([]core.Expense, error) {
	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCoreExpense(row)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		ID:          e.ID.String(),
		UserID:      e.UserID.String(),
		CategoryID:  e.CategoryID.String(),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		OccurredOn:  e.OccurredOn.String(),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", translateErr(err))
	}
	return toCoreExpense(row)
}

func (r *SQLiteRepository) ExpenseByID(ctx context.Context, userID, id uuid.UUID) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, GetExpenseParams{ID: id.String(), UserID: userID.String()})
	if err != nil {
		return core.Expense{}, translateErr(err)
	}
	return toCoreExpense(row)
}

// ExpenseFilter narrows a listing. Zero fields mean "no filter on this
// axis"; Start and End always travel together.
type ExpenseFilter struct {
	Start      core.Date
	End        core.Date
	CategoryID uuid.UUID
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID uuid.UUID, filter ExpenseFilter) ([]core.Expense, error) {
	hasRange := !filter.Start.IsEmpty() && !filter.End.IsEmpty()
	hasCategory := filter.CategoryID != uuid.Nil

	var (
		rows []Expense
		err  error
	)
	switch {
	case hasRange && hasCategory:
		rows, err = r.queries.ListExpensesInRangeByCategory(ctx, ListExpensesInRangeByCategoryParams{
			UserID:     userID.String(),
			CategoryID: filter.CategoryID.String(),
			Start:      filter.Start.String(),
			End:        filter.End.String(),
		})
	case hasRange:
		rows, err = r.queries.ListExpensesInRange(ctx, ListExpensesInRangeParams{
			UserID: userID.String(),
			Start:  filter.Start.String(),
			End:    filter.End.String(),
		})
	case hasCategory:
		rows, err = r.queries.ListExpensesByCategory(ctx, ListExpensesByCategoryParams{
			UserID:     userID.String(),
			CategoryID: filter.CategoryID.String(),
		})
	default:
		rows, err = r.queries.ListExpenses(ctx, userID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toCoreExpenses(rows)
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	row, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          e.ID.String(),
		UserID:      e.UserID.String(),
		CategoryID:  e.CategoryID.String(),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		OccurredOn:  e.OccurredOn.String(),
	})
	if err != nil {
		return core.Expense{}, translateErr(err)
	}
	return toCoreExpense(row)
}

// DeleteExpense soft-deletes: the row stays for the export mirror but
// disappears from every listing and aggregate.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id uuid.UUID) error {
	affected, err := r.queries.SoftDeleteExpense(ctx, SoftDeleteExpenseParams{ID: id.String(), UserID: userID.String()})
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, expenseID string) error {
	return r.queries.MarkExpenseExported(ctx, expenseID)
}

func (r *SQLiteRepository) MarkExportError(ctx context.Context, expenseID string) error {
	return r.queries.MarkExpenseExportError(ctx, expenseID)
}

// --- export queue ---

func (r *SQLiteRepository) EnqueueExport(ctx context.Context, expenseID uuid.UUID, operation string) error {
	if err := r.queries.EnqueueExport(ctx, EnqueueExportParams{
		ExpenseID: expenseID.String(),
		Operation: operation,
	}); err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DequeueExportBatch(ctx context.Context, limit int) ([]ExportQueueItem, error) {
	items, err := r.queries.DequeueExportBatch(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("dequeue export batch: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) MarkExportProcessing(ctx context.Context, id int64) error {
	return r.queries.MarkExportProcessing(ctx, id)
}

func (r *SQLiteRepository) MarkExportCompleted(ctx context.Context, id int64) error {
	return r.queries.MarkExportCompleted(ctx, id)
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, lastError string) error {
	return r.queries.MarkExportFailed(ctx, MarkExportFailedParams{ID: id, LastError: lastError})
}

func (r *SQLiteRepository) IncrementExportAttempt(ctx context.Context, id int64, lastError string) error {
	return r.queries.IncrementExportAttempt(ctx, IncrementExportAttemptParams{ID: id, LastError: lastError})
}

func (r *SQLiteRepository) ResetStaleExports(ctx context.Context) error {
	return r.queries.ResetStaleExports(ctx)
}

func (r *SQLiteRepository) CleanupCompletedExports(ctx context.Context, olderThan time.Duration) error {
	return r.queries.CleanupCompletedExports(ctx, time.Now().Add(-olderThan))
}

func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) error {
	return r.queries.RetryFailedExports(ctx)
}

func (r *SQLiteRepository) ExportQueueStats(ctx context.Context) (ExportQueueStats, error) {
	return r.queries.GetExportQueueStats(ctx)
}

// ExportRowFor fetches the denormalized row the export destination needs.
// Soft-deleted expenses are included so deletes can still be mirrored.
func (r *SQLiteRepository) ExportRowFor(ctx context.Context, expenseID string) (ExportRow, error) {
	row, err := r.queries.GetExportRow(ctx, expenseID)
	if err != nil {
		return ExportRow{}, translateErr(err)
	}
	return row, nil
}

// --- recurring expenses ---

func toCoreRecurring(re RecurringExpense) (core.RecurringExpense, error) {
	id, err := uuid.Parse(re.ID)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("parse recurring id %q: %w", re.ID, err)
	}
	userID, err := uuid.Parse(re.UserID)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("parse recurring user id %q: %w", re.UserID, err)
	}
	categoryID, err := uuid.Parse(re.CategoryID)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("parse recurring category id %q: %w", re.CategoryID, err)
	}
	start, err := core.ParseDate(re.StartDate)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("parse recurring start date %q: %w", re.StartDate, err)
	}
	out := core.RecurringExpense{
		ID:          id,
		Description: re.Description,
		Amount:      core.Money{Cents: re.AmountCents},
		CategoryID:  categoryID,
		UserID:      userID,
		Every:       core.Frequency(re.Frequency),
		StartDate:   start,
		Active:      re.Active,
	}
	if re.EndDate.Valid {
		end, err := core.ParseDate(re.EndDate.String)
		if err != nil {
			return core.RecurringExpense{}, fmt.Errorf("parse recurring end date %q: %w", re.EndDate.String, err)
		}
		out.EndDate = end
	}
	if re.LastRunOn.Valid {
		last, err := core.ParseDate(re.LastRunOn.String)
		if err != nil {
			return core.RecurringExpense{}, fmt.Errorf("parse recurring last run %q: %w", re.LastRunOn.String, err)
		}
		out.LastRunOn = last
	}
	return out, nil
}

func toCoreRecurrings(rows []RecurringExpense) ([]core.RecurringExpense, error) {
	res := make([]core.RecurringExpense, 0, len(rows))
	for _, row := range rows {
		re, err := toCoreRecurring(row)
		if err != nil {
			return nil, err
		}
		res = append(res, re)
	}
	return res, nil
}

func (r *SQLiteRepository) CreateRecurringExpense(ctx context.Context, re core.RecurringExpense) (core.RecurringExpense, error) {
	params := CreateRecurringExpenseParams{
		ID:          re.ID.String(),
		UserID:      re.UserID.String(),
		CategoryID:  re.CategoryID.String(),
		Description: re.Description,
		AmountCents: re.Amount.Cents,
		Frequency:   string(re.Every),
		StartDate:   re.StartDate.String(),
	}
	if !re.EndDate.IsEmpty() {
		params.EndDate = sql.NullString{String: re.EndDate.String(), Valid: true}
	}
	row, err := r.queries.CreateRecurringExpense(ctx, params)
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("create recurring expense: %w", translateErr(err))
	}
	return toCoreRecurring(row)
}

func (r *SQLiteRepository) RecurringExpenseByID(ctx context.Context, userID, id uuid.UUID) (core.RecurringExpense, error) {
	row, err := r.queries.GetRecurringExpense(ctx, GetRecurringExpenseParams{ID: id.String(), UserID: userID.String()})
	if err != nil {
		return core.RecurringExpense{}, translateErr(err)
	}
	return toCoreRecurring(row)
}

func (r *SQLiteRepository) ListRecurringExpenses(ctx context.Context, userID uuid.UUID) ([]core.RecurringExpense, error) {
	rows, err := r.queries.ListRecurringExpenses(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}
	return toCoreRecurrings(rows)
}

// ListActiveRecurringExpenses spans all users; the scheduler runs one
// pass over everything.
func (r *SQLiteRepository) ListActiveRecurringExpenses(ctx context.Context) ([]core.RecurringExpense, error) {
	rows, err := r.queries.ListActiveRecurringExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active recurring expenses: %w", err)
	}
	return toCoreRecurrings(rows)
}

func (r *SQLiteRepository) SetRecurringActive(ctx context.Context, userID, id uuid.UUID, active bool) error {
	affected, err := r.queries.SetRecurringActive(ctx, SetRecurringActiveParams{
		ID:     id.String(),
		UserID: userID.String(),
		Active: active,
	})
	if err != nil {
		return fmt.Errorf("set recurring active: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) MarkRecurringRun(ctx context.Context, id uuid.UUID, on core.Date) error {
	return r.queries.UpdateRecurringLastRun(ctx, UpdateRecurringLastRunParams{
		ID:        id.String(),
		LastRunOn: on.String(),
	})
}
