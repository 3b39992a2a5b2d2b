package http

import (
	"net/http"

	"outlay/internal/core"
)

type categoryJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID.String(), Name: c.Name}
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	categories, err := s.categories.ListCategories(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]categoryJSON, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.categories.CreateCategory(r.Context(), user.ID, sanitizeInput(req.Name))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryJSON(created))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	category, err := s.categories.GetCategory(r.Context(), user.ID, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(category))
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	renamed, err := s.categories.RenameCategory(r.Context(), user.ID, id, sanitizeInput(req.Name))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryJSON(renamed))
}

// handleDeleteCategory removes an empty category. Categories still
// referenced by live expenses refuse deletion with a 409.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.categories.DeleteCategory(r.Context(), user.ID, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
