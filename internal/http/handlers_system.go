package http

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the database answers. Load balancers use
// it to hold traffic during startup and migrations.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleMetrics exposes the process counters as JSON: request totals
// from the trace middleware, suspicious-request and rate-limit counts,
// trend cache hit rates and live UI sessions.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.Metrics()
	detection := s.detector.GetMetrics()
	limits := s.limiter.GetMetrics()
	cacheStats := s.trends.CacheStats()

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"requests": map[string]int64{
			"total":           requests.TotalRequests,
			"client_errors":   requests.ClientErrors,
			"server_errors":   requests.ServerErrors,
			"avg_duration_us": requests.AverageResponseTime,
			"suspicious":      detection.SuspiciousRequests,
		},
		"rate_limit": map[string]int64{
			"rejected":        limits.TotalHits,
			"tracked_clients": limits.ClientCount,
		},
		"trend_cache": map[string]int64{
			"hits":      cacheStats.Hits,
			"misses":    cacheStats.Misses,
			"evictions": cacheStats.Evictions,
		},
		"ui_sessions": s.sessions.ActiveSessions(),
	})
}
