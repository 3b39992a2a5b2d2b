package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of *sql.DB / *sql.Tx the query layer needs.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the raw SQL surface of the database. Rows come back as the
// row structs below; translation into core types happens in the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type (
	User struct {
		ID        string
		Username  string
		Token     string
		CreatedAt time.Time
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		CreatedAt time.Time
	}

	Expense struct {
		ID           string
		UserID       string
		CategoryID   string
		Description  string
		AmountCents  int64
		OccurredOn   string
		ExportStatus string
		ExportedAt   sql.NullTime
		CreatedAt    time.Time
		UpdatedAt    time.Time
		DeletedAt    sql.NullTime
	}

	RecurringExpense struct {
		ID          string
		UserID      string
		CategoryID  string
		Description string
		AmountCents int64
		Frequency   string
		StartDate   string
		EndDate     sql.NullString
		Active      bool
		LastRunOn   sql.NullString
		CreatedAt   time.Time
	}

	ExportQueueItem struct {
		ID        int64
		ExpenseID string
		Operation string
		Status    string
		Attempts  int64
		LastError sql.NullString
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// ExportRow joins an expense with its category and owner for the
	// export destination, regardless of soft deletion.
	ExportRow struct {
		ID           string
		Description  string
		AmountCents  int64
		OccurredOn   string
		CategoryName string
		Username     string
		Deleted      bool
	}

	ExportQueueStats struct {
		Pending    int64
		Processing int64
		Completed  int64
		Failed     int64
	}
)

const userColumns = "id, username, token, created_at"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Token, &u.CreatedAt)
	return u, err
}

type UpsertUserParams struct {
	ID       string
	Username string
	Token    string
}

// UpsertUser creates the user or rotates its token when the username exists.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, token)
		VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET token = excluded.token
		RETURNING `+userColumns,
		arg.ID, arg.Username, arg.Token)
	return scanUser(row)
}

func (q *Queries) GetUserByToken(ctx context.Context, token string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE token = ?", token)
	return scanUser(row)
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

const categoryColumns = "id, user_id, name, created_at"

func scanCategory(row *sql.Row) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	return c, err
}

type CreateCategoryParams struct {
	ID     string
	UserID string
	Name   string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, user_id, name)
		VALUES (?, ?, ?)
		RETURNING `+categoryColumns,
		arg.ID, arg.UserID, arg.Name)
	return scanCategory(row)
}

type GetCategoryParams struct {
	ID     string
	UserID string
}

func (q *Queries) GetCategory(ctx context.Context, arg GetCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ? AND user_id = ?",
		arg.ID, arg.UserID)
	return scanCategory(row)
}

func (q *Queries) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

type RenameCategoryParams struct {
	ID     string
	UserID string
	Name   string
}

func (q *Queries) RenameCategory(ctx context.Context, arg RenameCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE categories SET name = ?
		WHERE id = ? AND user_id = ?
		RETURNING `+categoryColumns,
		arg.Name, arg.ID, arg.UserID)
	return scanCategory(row)
}

type DeleteCategoryParams struct {
	ID     string
	UserID string
}

func (q *Queries) DeleteCategory(ctx context.Context, arg DeleteCategoryParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM categories WHERE id = ? AND user_id = ?", arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type CountExpensesByCategoryParams struct {
	CategoryID string
	UserID     string
}

// CountExpensesByCategory counts live expenses referencing the category.
func (q *Queries) CountExpensesByCategory(ctx context.Context, arg CountExpensesByCategoryParams) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM expenses
		WHERE category_id = ? AND user_id = ? AND deleted_at IS NULL`,
		arg.CategoryID, arg.UserID).Scan(&n)
	return n, err
}

const expenseColumns = "id, user_id, category_id, description, amount_cents, occurred_on, export_status, exported_at, created_at, updated_at, deleted_at"

func scanExpenseRow(row *sql.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Description, &e.AmountCents,
		&e.OccurredOn, &e.ExportStatus, &e.ExportedAt, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt)
	return e, err
}

func scanExpenses(rows *sql.Rows) ([]Expense, error) {
	defer rows.Close()
	var expenses []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Description, &e.AmountCents,
			&e.OccurredOn, &e.ExportStatus, &e.ExportedAt, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

type CreateExpenseParams struct {
	ID          string
	UserID      string
	CategoryID  string
	Description string
	AmountCents int64
	OccurredOn  string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO expenses (id, user_id, category_id, description, amount_cents, occurred_on)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+expenseColumns,
		arg.ID, arg.UserID, arg.CategoryID, arg.Description, arg.AmountCents, arg.OccurredOn)
	return scanExpenseRow(row)
}

type GetExpenseParams struct {
	ID     string
	UserID string
}

func (q *Queries) GetExpense(ctx context.Context, arg GetExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		arg.ID, arg.UserID)
	return scanExpenseRow(row)
}

func (q *Queries) ListExpenses(ctx context.Context, userID string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY occurred_on DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

type ListExpensesInRangeParams struct {
	UserID string
	Start  string
	End    string
}

func (q *Queries) ListExpensesInRange(ctx context.Context, arg ListExpensesInRangeParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND deleted_at IS NULL
		  AND occurred_on >= ? AND occurred_on <= ?
		ORDER BY occurred_on DESC, created_at DESC`,
		arg.UserID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

type ListExpensesByCategoryParams struct {
	UserID     string
	CategoryID string
}

func (q *Queries) ListExpensesByCategory(ctx context.Context, arg ListExpensesByCategoryParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND category_id = ? AND deleted_at IS NULL
		ORDER BY occurred_on DESC, created_at DESC`,
		arg.UserID, arg.CategoryID)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

type ListExpensesInRangeByCategoryParams struct {
	UserID     string
	CategoryID string
	Start      string
	End        string
}

func (q *Queries) ListExpensesInRangeByCategory(ctx context.Context, arg ListExpensesInRangeByCategoryParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? AND category_id = ? AND deleted_at IS NULL
		  AND occurred_on >= ? AND occurred_on <= ?
		ORDER BY occurred_on DESC, created_at DESC`,
		arg.UserID, arg.CategoryID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	return scanExpenses(rows)
}

type UpdateExpenseParams struct {
	ID          string
	UserID      string
	CategoryID  string
	Description string
	AmountCents int64
	OccurredOn  string
}

// UpdateExpense rewrites the mutable fields and resets the export status so
// the mirror picks the change up again.
func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET category_id = ?, description = ?, amount_cents = ?, occurred_on = ?,
		    export_status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL
		RETURNING `+expenseColumns,
		arg.CategoryID, arg.Description, arg.AmountCents, arg.OccurredOn, arg.ID, arg.UserID)
	return scanExpenseRow(row)
}

type SoftDeleteExpenseParams struct {
	ID     string
	UserID string
}

func (q *Queries) SoftDeleteExpense(ctx context.Context, arg SoftDeleteExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE expenses SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) MarkExpenseExported(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE expenses SET export_status = 'exported', exported_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

func (q *Queries) MarkExpenseExportError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE expenses SET export_status = 'error' WHERE id = ?", id)
	return err
}

// GetExportRow fetches what the export destination needs for one expense,
// soft-deleted rows included so delete operations can still be mirrored.
func (q *Queries) GetExportRow(ctx context.Context, expenseID string) (ExportRow, error) {
	var r ExportRow
	err := q.db.QueryRowContext(ctx, `
		SELECT e.id, e.description, e.amount_cents, e.occurred_on,
		       c.name, u.username, e.deleted_at IS NOT NULL
		FROM expenses e
		JOIN categories c ON c.id = e.category_id
		JOIN users u ON u.id = e.user_id
		WHERE e.id = ?`, expenseID).
		Scan(&r.ID, &r.Description, &r.AmountCents, &r.OccurredOn, &r.CategoryName, &r.Username, &r.Deleted)
	return r, err
}

type EnqueueExportParams struct {
	ExpenseID string
	Operation string
}

func (q *Queries) EnqueueExport(ctx context.Context, arg EnqueueExportParams) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO export_queue (expense_id, operation) VALUES (?, ?)",
		arg.ExpenseID, arg.Operation)
	return err
}

const exportQueueColumns = "id, expense_id, operation, status, attempts, last_error, created_at, updated_at"

func (q *Queries) DequeueExportBatch(ctx context.Context, limit int64) ([]ExportQueueItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+exportQueueColumns+` FROM export_queue
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExportQueueItem
	for rows.Next() {
		var it ExportQueueItem
		if err := rows.Scan(&it.ID, &it.ExpenseID, &it.Operation, &it.Status,
			&it.Attempts, &it.LastError, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queries) MarkExportProcessing(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue SET status = 'processing', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

func (q *Queries) MarkExportCompleted(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue SET status = 'completed', last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

type MarkExportFailedParams struct {
	ID        int64
	LastError string
}

func (q *Queries) MarkExportFailed(ctx context.Context, arg MarkExportFailedParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue SET status = 'failed', last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, arg.LastError, arg.ID)
	return err
}

type IncrementExportAttemptParams struct {
	ID        int64
	LastError string
}

// IncrementExportAttempt records a failed try and puts the item back in the
// pending pool for the next poll cycle.
func (q *Queries) IncrementExportAttempt(ctx context.Context, arg IncrementExportAttemptParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue
		SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, arg.LastError, arg.ID)
	return err
}

// ResetStaleExports returns items stuck in processing to the pending pool,
// for recovery after a crash mid-batch.
func (q *Queries) ResetStaleExports(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue SET status = 'pending', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing'`)
	return err
}

// sqliteTimestamp matches the text CURRENT_TIMESTAMP produces, so bound
// cutoffs compare correctly against stored values.
const sqliteTimestamp = "2006-01-02 15:04:05"

func (q *Queries) CleanupCompletedExports(ctx context.Context, before time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM export_queue WHERE status = 'completed' AND updated_at < ?",
		before.UTC().Format(sqliteTimestamp))
	return err
}

func (q *Queries) RetryFailedExports(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE export_queue SET status = 'pending', attempts = 0, updated_at = CURRENT_TIMESTAMP
		WHERE status = 'failed'`)
	return err
}

func (q *Queries) GetExportQueueStats(ctx context.Context) (ExportQueueStats, error) {
	var s ExportQueueStats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'processing' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END)
		FROM export_queue`).
		Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	return s, err
}

const recurringColumns = "id, user_id, category_id, description, amount_cents, frequency, start_date, end_date, active, last_run_on, created_at"

func scanRecurringRow(row *sql.Row) (RecurringExpense, error) {
	var re RecurringExpense
	err := row.Scan(&re.ID, &re.UserID, &re.CategoryID, &re.Description, &re.AmountCents,
		&re.Frequency, &re.StartDate, &re.EndDate, &re.Active, &re.LastRunOn, &re.CreatedAt)
	return re, err
}

func scanRecurring(rows *sql.Rows) ([]RecurringExpense, error) {
	defer rows.Close()
	var res []RecurringExpense
	for rows.Next() {
		var re RecurringExpense
		if err := rows.Scan(&re.ID, &re.UserID, &re.CategoryID, &re.Description, &re.AmountCents,
			&re.Frequency, &re.StartDate, &re.EndDate, &re.Active, &re.LastRunOn, &re.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, re)
	}
	return res, rows.Err()
}

type CreateRecurringExpenseParams struct {
	ID          string
	UserID      string
	CategoryID  string
	Description string
	AmountCents int64
	Frequency   string
	StartDate   string
	EndDate     sql.NullString
}

func (q *Queries) CreateRecurringExpense(ctx context.Context, arg CreateRecurringExpenseParams) (RecurringExpense, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_expenses (id, user_id, category_id, description, amount_cents, frequency, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+recurringColumns,
		arg.ID, arg.UserID, arg.CategoryID, arg.Description, arg.AmountCents,
		arg.Frequency, arg.StartDate, arg.EndDate)
	return scanRecurringRow(row)
}

type GetRecurringExpenseParams struct {
	ID     string
	UserID string
}

func (q *Queries) GetRecurringExpense(ctx context.Context, arg GetRecurringExpenseParams) (RecurringExpense, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+recurringColumns+" FROM recurring_expenses WHERE id = ? AND user_id = ?",
		arg.ID, arg.UserID)
	return scanRecurringRow(row)
}

func (q *Queries) ListRecurringExpenses(ctx context.Context, userID string) ([]RecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+recurringColumns+` FROM recurring_expenses
		WHERE user_id = ?
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanRecurring(rows)
}

// ListActiveRecurringExpenses returns active templates across all users,
// ordered oldest first so the scheduler's pass is deterministic.
func (q *Queries) ListActiveRecurringExpenses(ctx context.Context) ([]RecurringExpense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+recurringColumns+` FROM recurring_expenses
		WHERE active = 1
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return scanRecurring(rows)
}

type SetRecurringActiveParams struct {
	ID     string
	UserID string
	Active bool
}

func (q *Queries) SetRecurringActive(ctx context.Context, arg SetRecurringActiveParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE recurring_expenses SET active = ? WHERE id = ? AND user_id = ?",
		arg.Active, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type UpdateRecurringLastRunParams struct {
	ID        string
	LastRunOn string
}

func (q *Queries) UpdateRecurringLastRun(ctx context.Context, arg UpdateRecurringLastRunParams) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE recurring_expenses SET last_run_on = ? WHERE id = ?",
		arg.LastRunOn, arg.ID)
	return err
}
