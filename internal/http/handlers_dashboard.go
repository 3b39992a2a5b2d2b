package http

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// View models handed to the templates. Amounts are pre-formatted so
// templates never do arithmetic.
type (
	categoryAmountView struct {
		Name   string
		Amount string
	}

	monthOverviewView struct {
		Year       int
		MonthName  string
		Month      int
		Total      string
		ByCategory []categoryAmountView
	}

	expenseRowView struct {
		ID          string
		Description string
		Amount      string
		Category    string
		OccurredOn  string
	}

	monthBarView struct {
		Month string
		Total string
		Cents int64
	}

	dashboardView struct {
		Username     string
		Overview     monthOverviewView
		Categories   []core.Category
		Recent       []expenseRowView
		MonthlyChart []monthBarView
		Settings     settingsModalView
	}
)

const recentExpenseLimit = 15

// handleIndex renders the dashboard: the current month's overview, the
// recent expense list, the monthly chart for the current year and the
// category manager.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := s.uiSession(w, r)
	if err != nil {
		s.uiError(w, r, err)
		return
	}

	now := time.Now()
	view, err := s.dashboardView(r, now.Year(), int(now.Month()))
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	view.Settings = settingsModalView{
		Open:     s.sessions.SettingsOpen(session),
		Username: s.uiUser.Username,
	}

	s.render(w, r, "index.html", view)
}

// handleMonthOverview re-renders the overview partial, optionally for
// another month (the HX-Trigger payload of an expense write names the
// month that changed).
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	now := time.Now()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))
	if month < 1 || month > 12 {
		htmxError(http.StatusBadRequest, "invalid month").Write(w)
		return
	}

	overview, err := s.monthOverviewView(r, year, month)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.render(w, r, "month_overview.html", overview)
}

func (s *Server) dashboardView(r *http.Request, year, month int) (dashboardView, error) {
	ctx := r.Context()

	overview, err := s.monthOverviewView(r, year, month)
	if err != nil {
		return dashboardView{}, err
	}

	categories, err := s.categories.ListCategories(ctx, s.uiUser.ID)
	if err != nil {
		return dashboardView{}, err
	}
	names := categoryNames(categories)

	expenses, err := s.expenses.ListExpenses(ctx, s.uiUser.ID, storage.ExpenseFilter{})
	if err != nil {
		return dashboardView{}, err
	}
	recent := make([]expenseRowView, 0, recentExpenseLimit)
	for _, e := range expenses {
		if len(recent) == recentExpenseLimit {
			break
		}
		name, ok := names[e.CategoryID]
		if !ok {
			name = e.CategoryID.String()
		}
		recent = append(recent, expenseRowView{
			ID:          e.ID.String(),
			Description: e.Description,
			Amount:      formatEuros(e.Amount.Cents),
			Category:    name,
			OccurredOn:  e.OccurredOn.String(),
		})
	}

	monthly, err := s.trends.MonthlyTotals(ctx, s.uiUser.ID, year)
	if err != nil {
		return dashboardView{}, err
	}
	chart := make([]monthBarView, 0, len(monthly))
	for _, m := range monthly {
		chart = append(chart, monthBarView{
			Month: time.Month(m.Month).String()[:3],
			Total: formatEuros(m.Total.Cents),
			Cents: m.Total.Cents,
		})
	}

	return dashboardView{
		Username:     s.uiUser.Username,
		Overview:     overview,
		Categories:   categories,
		Recent:       recent,
		MonthlyChart: chart,
	}, nil
}

func (s *Server) monthOverviewView(r *http.Request, year, month int) (monthOverviewView, error) {
	ctx := r.Context()

	expenses, err := s.expenses.ListExpenses(ctx, s.uiUser.ID, storage.ExpenseFilter{
		Start: core.NewDate(year, month, 1),
		End:   core.NewDate(year, month, daysIn(year, month)),
	})
	if err != nil {
		return monthOverviewView{}, err
	}

	categories, err := s.categories.ListCategories(ctx, s.uiUser.ID)
	if err != nil {
		return monthOverviewView{}, err
	}

	overview := core.NewMonthOverview(expenses, categoryNames(categories), year, month)
	view := monthOverviewView{
		Year:      overview.Year,
		MonthName: time.Month(overview.Month).String(),
		Month:     overview.Month,
		Total:     formatEuros(overview.Total.Cents),
	}
	for _, ca := range overview.ByCategory {
		view.ByCategory = append(view.ByCategory, categoryAmountView{
			Name:   ca.Name,
			Amount: formatEuros(ca.Amount.Cents),
		})
	}
	return view, nil
}

func categoryNames(categories []core.Category) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// render executes one template into a buffer first so a failing
// template yields a clean 500 instead of a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "render template",
			"template", name,
			log.FieldError, err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// uiError is the HTMX-side counterpart of respondError: same status
// mapping, inline HTML fragment instead of a JSON body.
func (s *Server) uiError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case isValidationError(err):
		status, message = http.StatusBadRequest, err.Error()
	case isConflictError(err):
		status, message = http.StatusConflict, err.Error()
	case isNotFoundError(err):
		status, message = http.StatusNotFound, "not found"
	default:
		s.logger.ErrorContext(r.Context(), "ui request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
	}
	htmxError(status, message).Write(w)
}
