package http

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"outlay/internal/core"
	"outlay/internal/storage"
)

type expenseJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	CategoryID  string `json:"category_id"`
	OccurredOn  string `json:"occurred_on"`
}

type expenseRequest struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	CategoryID  string `json:"category_id"`
	OccurredOn  string `json:"occurred_on"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID.String(),
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		CategoryID:  e.CategoryID.String(),
		OccurredOn:  e.OccurredOn.String(),
	}
}

// expenseFromRequest builds the core expense a create or update writes.
// id is uuid.Nil on create; the service assigns one.
func expenseFromRequest(req expenseRequest, userID, id uuid.UUID) (core.Expense, error) {
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("malformed category_id: %w", core.ErrMissingCategory)
	}
	occurredOn, err := core.ParseDate(req.OccurredOn)
	if err != nil {
		return core.Expense{}, fmt.Errorf("malformed occurred_on: %w", core.ErrInvalidDay)
	}
	return core.Expense{
		ID:          id,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: req.AmountCents},
		CategoryID:  categoryID,
		OccurredOn:  occurredOn,
		UserID:      userID,
	}, nil
}

// handleListExpenses serves the raw expense listing the aggregates are
// derived from. start, end and category_id narrow the result; all three
// are optional but start and end come as a pair.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var filter storage.ExpenseFilter

	if query.Get("start") != "" || query.Get("end") != "" {
		start, end, err := parseDateRange(query)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if start.Time.After(end.Time) {
			writeJSONError(w, http.StatusBadRequest, core.ErrInvalidRange.Error())
			return
		}
		filter.Start, filter.End = start, end
	}
	if raw := query.Get("category_id"); raw != "" {
		categoryID, err := uuid.Parse(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed category_id")
			return
		}
		filter.CategoryID = categoryID
	}

	expenses, err := s.expenses.ListExpenses(r.Context(), user.ID, filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := expenseFromRequest(req, user.ID, uuid.Nil)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	created, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseJSON(created))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := s.expenses.GetExpense(r.Context(), user.ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(expense))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	expense, err := expenseFromRequest(req, user.ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	updated, err := s.expenses.UpdateExpense(r.Context(), expense)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), user.ID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
