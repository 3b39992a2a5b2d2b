package http

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"outlay/internal/core"
)

type recurringJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	CategoryID  string `json:"category_id"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date,omitempty"`
	Active      bool   `json:"active"`
	LastRunOn   string `json:"last_run_on,omitempty"`
}

type recurringRequest struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	CategoryID  string `json:"category_id"`
	Frequency   string `json:"frequency"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

func toRecurringJSON(re core.RecurringExpense) recurringJSON {
	out := recurringJSON{
		ID:          re.ID.String(),
		Description: re.Description,
		AmountCents: re.Amount.Cents,
		CategoryID:  re.CategoryID.String(),
		Frequency:   string(re.Every),
		StartDate:   re.StartDate.String(),
		Active:      re.Active,
	}
	if !re.EndDate.IsEmpty() {
		out.EndDate = re.EndDate.String()
	}
	if !re.LastRunOn.IsEmpty() {
		out.LastRunOn = re.LastRunOn.String()
	}
	return out
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	templates, err := s.recurring.ListTemplates(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]recurringJSON, 0, len(templates))
	for _, re := range templates {
		out = append(out, toRecurringJSON(re))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed category_id")
		return
	}
	startDate, err := core.ParseDate(req.StartDate)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("malformed start_date: %v", err))
		return
	}
	var endDate core.Date
	if req.EndDate != "" {
		endDate, err = core.ParseDate(req.EndDate)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("malformed end_date: %v", err))
			return
		}
	}

	created, err := s.recurring.CreateTemplate(r.Context(), core.RecurringExpense{
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: req.AmountCents},
		CategoryID:  categoryID,
		UserID:      user.ID,
		Every:       core.Frequency(req.Frequency),
		StartDate:   startDate,
		EndDate:     endDate,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringJSON(created))
}

func (s *Server) handleGetRecurring(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	template, err := s.recurring.GetTemplate(r.Context(), user.ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurringJSON(template))
}

// handleSetRecurringActive pauses or resumes a template. Materializing
// due templates stays with the scheduler; this only gates it.
func (s *Server) handleSetRecurringActive(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeJSONError(w, http.StatusBadRequest, "missing active field")
		return
	}

	if err := s.recurring.SetActive(r.Context(), user.ID, id, *req.Active); err != nil {
		s.respondError(w, r, err)
		return
	}

	template, err := s.recurring.GetTemplate(r.Context(), user.ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurringJSON(template))
}
