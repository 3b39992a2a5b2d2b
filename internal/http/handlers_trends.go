package http

import (
	"net/http"

	"outlay/internal/auth"
	"outlay/internal/core"
)

// Trend responses are arrays of {key, total} pairs with totals in
// cents. The key is the bucket: a category id, a month number, or a
// year.
type (
	categoryTrendPoint struct {
		Key   string `json:"key"`
		Total int64  `json:"total"`
	}

	bucketTrendPoint struct {
		Key   int   `json:"key"`
		Total int64 `json:"total"`
	}
)

// apiUser pulls the authenticated user installed by the auth
// middleware. A miss means the route was wired outside the API chain.
func (s *Server) apiUser(w http.ResponseWriter, r *http.Request) (core.User, bool) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	}
	return user, ok
}

func (s *Server) handleTrendCategories(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	start, end, err := parseDateRange(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	totals, err := s.trends.CategoryTotals(r.Context(), user.ID, start, end)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	points := make([]categoryTrendPoint, 0, len(totals))
	for _, t := range totals {
		points = append(points, categoryTrendPoint{Key: t.CategoryID.String(), Total: t.Total.Cents})
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleTrendMonthly(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	year, err := parseYear(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	totals, err := s.trends.MonthlyTotals(r.Context(), user.ID, year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	points := make([]bucketTrendPoint, 0, len(totals))
	for _, t := range totals {
		points = append(points, bucketTrendPoint{Key: t.Month, Total: t.Total.Cents})
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleTrendYearly(w http.ResponseWriter, r *http.Request) {
	user, ok := s.apiUser(w, r)
	if !ok {
		return
	}

	totals, err := s.trends.YearlyTotals(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	points := make([]bucketTrendPoint, 0, len(totals))
	for _, t := range totals {
		points = append(points, bucketTrendPoint{Key: t.Year, Total: t.Total.Cents})
	}
	writeJSON(w, http.StatusOK, points)
}
