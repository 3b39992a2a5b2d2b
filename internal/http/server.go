// Package http serves the JSON API and the HTMX UI on one mux.
//
// The API under /api/v1 authenticates with bearer tokens and speaks
// JSON. The UI is server-rendered from embedded templates and keeps a
// cookie session for presentation state. Both sit behind the same
// middleware chain: trace, security headers, suspicious-request
// detection, per-IP rate limiting.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"outlay/internal/auth"
	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/middleware/ratelimit"
	"outlay/internal/middleware/security"
	"outlay/internal/middleware/trace"
	"outlay/internal/services"
	"outlay/internal/storage"
	"outlay/internal/uistate"
	"outlay/web"
)

// Server owns the HTTP surface. It embeds http.Server so callers can
// ListenAndServe directly, and Shutdown also stops the background
// goroutines the middleware and session store run.
type Server struct {
	http.Server

	expenses   *services.ExpenseService
	categories *services.CategoryService
	trends     *services.TrendService
	recurring  *services.RecurringService

	directory *auth.Directory
	sessions  *uistate.Store
	uiUser    core.User

	repo      *storage.SQLiteRepository
	templates *template.Template
	logger    *log.Logger

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	startedAt    time.Time
	shutdownOnce sync.Once
}

// Options carries everything NewServer needs. UIUser is the account the
// cookie-session UI acts as; API requests carry their own identity in
// the bearer token.
type Options struct {
	Addr       string
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	Trends     *services.TrendService
	Recurring  *services.RecurringService
	Directory  *auth.Directory
	Sessions   *uistate.Store
	UIUser     core.User
	Repository *storage.SQLiteRepository
	Logger     *log.Logger
	RateLimit  ratelimit.Config
}

// NewServer parses the embedded templates, wires the middleware chain,
// and registers all routes.
func NewServer(opts Options) (*Server, error) {
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	templates, err := template.ParseFS(web.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		expenses:   opts.Expenses,
		categories: opts.Categories,
		trends:     opts.Trends,
		recurring:  opts.Recurring,
		directory:  opts.Directory,
		sessions:   opts.Sessions,
		uiUser:     opts.UIUser,
		repo:       opts.Repository,
		templates:  templates,
		logger:     logger,
		detector:   security.NewDetector(),
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		startedAt:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(opts.Logger, s.detector.ExtractClientIP)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Probes and metrics bypass auth; they sit inside the chain so they
	// are traced and rate limited like everything else.
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// JSON API, bearer-token auth.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/trends/categories", s.handleTrendCategories)
	api.HandleFunc("GET /api/v1/trends/monthly", s.handleTrendMonthly)
	api.HandleFunc("GET /api/v1/trends/yearly", s.handleTrendYearly)

	api.HandleFunc("GET /api/v1/categories", s.handleListCategories)
	api.HandleFunc("POST /api/v1/categories", s.handleCreateCategory)
	api.HandleFunc("GET /api/v1/categories/{id}", s.handleGetCategory)
	api.HandleFunc("PUT /api/v1/categories/{id}", s.handleRenameCategory)
	api.HandleFunc("DELETE /api/v1/categories/{id}", s.handleDeleteCategory)

	api.HandleFunc("GET /api/v1/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/v1/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/v1/expenses/{id}", s.handleGetExpense)
	api.HandleFunc("PUT /api/v1/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/v1/expenses/{id}", s.handleDeleteExpense)

	api.HandleFunc("GET /api/v1/recurring", s.handleListRecurring)
	api.HandleFunc("POST /api/v1/recurring", s.handleCreateRecurring)
	api.HandleFunc("GET /api/v1/recurring/{id}", s.handleGetRecurring)
	api.HandleFunc("PUT /api/v1/recurring/{id}", s.handleSetRecurringActive)

	mux.Handle("/api/v1/", s.directory.Middleware(s.logger)(api))

	// HTMX UI, cookie session.
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/month-overview", s.handleMonthOverview)
	mux.HandleFunc("GET /expenses/new", s.handleExpenseForm)
	mux.HandleFunc("POST /expenses", s.handleCreateExpenseUI)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpenseUI)
	mux.HandleFunc("GET /categories", s.handleCategoriesPartial)
	mux.HandleFunc("POST /categories", s.handleCreateCategoryUI)
	mux.HandleFunc("DELETE /categories/{id}", s.handleDeleteCategoryUI)
	mux.HandleFunc("GET /settings/modal", s.handleSettingsModal)
	mux.HandleFunc("POST /settings/open", s.handleSettingsOpen)
	mux.HandleFunc("POST /settings/close", s.handleSettingsClose)
	mux.HandleFunc("POST /settings/toggle", s.handleSettingsToggle)

	// Static assets from the embedded FS, cached hard.
	if sub, err := fs.Sub(web.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("embedded static assets unavailable", log.FieldError, err)
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, nil)

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.detectSuspicious(handler)
	handler = headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	return handler
}

// detectSuspicious logs and counts scanner-looking requests without
// blocking them; blocking stays with the rate limiter.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// uiSession resolves the request's session cookie, creating a session
// for the UI user when none exists. The UI is single-user; the bearer
// API is where other users live.
func (s *Server) uiSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(uistate.CookieName); err == nil {
		if _, ok := s.sessions.Resolve(cookie.Value); ok {
			return cookie.Value, nil
		}
	}

	id, err := s.sessions.Create(s.uiUser.ID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     uistate.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Shutdown stops the HTTP listener and the background goroutines owned
// by the server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.sessions.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
