package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"outlay/internal/core"
)

// Client events fired by the UI write handlers. Page regions listen for
// them with hx-trigger and reload themselves.
const (
	eventExpenseChanged  = "expense:changed"
	eventCategoryChanged = "category:changed"
)

// handleExpenseForm renders the new-expense form with the category
// options preloaded.
func (s *Server) handleExpenseForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	categories, err := s.categories.ListCategories(r.Context(), s.uiUser.ID)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.render(w, r, "expense_form.html", struct {
		Categories []core.Category
		Today      string
	}{
		Categories: categories,
		Today:      core.Date{Time: time.Now()}.String(),
	})
}

// handleCreateExpenseUI accepts the expense form. HTMX posts
// form-encoded fields; scripted clients may post the same keys as JSON.
// Amounts arrive as decimal strings ("12,34" or "12.34") and are parsed
// to cents.
func (s *Server) handleCreateExpenseUI(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	parser := newBodyParser(r)
	if err := parser.Err(); err != nil {
		htmxError(http.StatusBadRequest, "malformed request body").Write(w)
		return
	}

	cents, err := core.ParseDecimalToCents(parser.Get("amount"))
	if err != nil {
		htmxError(http.StatusBadRequest, "invalid amount").Write(w)
		return
	}
	categoryID, err := uuid.Parse(parser.Get("category_id"))
	if err != nil {
		htmxError(http.StatusBadRequest, "invalid category").Write(w)
		return
	}

	occurredOn := core.Date{Time: time.Now()}
	if raw := parser.Get("occurred_on"); raw != "" {
		occurredOn, err = core.ParseDate(raw)
		if err != nil {
			htmxError(http.StatusBadRequest, "invalid date").Write(w)
			return
		}
	}

	created, err := s.expenses.CreateExpense(r.Context(), core.Expense{
		Description: parser.Get("description"),
		Amount:      core.Money{Cents: cents},
		CategoryID:  categoryID,
		OccurredOn:  occurredOn,
		UserID:      s.uiUser.ID,
	})
	if err != nil {
		s.uiError(w, r, err)
		return
	}

	newHTMXResponse().
		Status(http.StatusCreated).
		TriggerExpenseChanged(eventExpenseChanged, created.OccurredOn.Year(), created.OccurredOn.Month()).
		TriggerFormReset().
		TriggerSuccess("Expense recorded").
		Write(w)
}

func (s *Server) handleDeleteExpenseUI(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		htmxError(http.StatusBadRequest, "invalid expense id").Write(w)
		return
	}

	expense, err := s.expenses.GetExpense(r.Context(), s.uiUser.ID, id)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), s.uiUser.ID, id); err != nil {
		s.uiError(w, r, err)
		return
	}

	newHTMXResponse().
		TriggerExpenseChanged(eventExpenseChanged, expense.OccurredOn.Year(), expense.OccurredOn.Month()).
		TriggerSuccess("Expense deleted").
		Write(w)
}

// handleCategoriesPartial renders the category manager fragment.
func (s *Server) handleCategoriesPartial(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	categories, err := s.categories.ListCategories(r.Context(), s.uiUser.ID)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.render(w, r, "categories.html", struct {
		Categories []core.Category
	}{Categories: categories})
}

func (s *Server) handleCreateCategoryUI(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	parser := newBodyParser(r)
	if err := parser.Err(); err != nil {
		htmxError(http.StatusBadRequest, "malformed request body").Write(w)
		return
	}

	if _, err := s.categories.CreateCategory(r.Context(), s.uiUser.ID, parser.Get("name")); err != nil {
		s.uiError(w, r, err)
		return
	}

	newHTMXResponse().
		Status(http.StatusCreated).
		Trigger(eventCategoryChanged, struct{}{}).
		TriggerFormReset().
		TriggerSuccess("Category created").
		Write(w)
}

func (s *Server) handleDeleteCategoryUI(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uiSession(w, r); err != nil {
		s.uiError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		htmxError(http.StatusBadRequest, "invalid category id").Write(w)
		return
	}

	if err := s.categories.DeleteCategory(r.Context(), s.uiUser.ID, id); err != nil {
		s.uiError(w, r, err)
		return
	}

	newHTMXResponse().
		Trigger(eventCategoryChanged, struct{}{}).
		TriggerSuccess("Category deleted").
		Write(w)
}
