// Package http is the JSON API of the server and the mount point of the
// notification endpoint.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"financeflow/internal/ai"
	"financeflow/internal/auth"
	"financeflow/internal/middleware/ratelimit"
	"financeflow/internal/middleware/security"
	"financeflow/internal/middleware/trace"
	"financeflow/internal/notify"
	"financeflow/internal/services"
	"financeflow/internal/storage"
)

// Deps are the collaborators of the API. Categorizer may be nil, in which
// case the categorize endpoint answers with the fallback category.
type Deps struct {
	Store       storage.Store
	Auth        *auth.Service
	Tokens      *auth.Tokens
	Expenses    *services.ExpenseService
	Recurring   *services.RecurringService
	Categorizer *ai.Categorizer
	Hub         *notify.Hub
	Notify      http.Handler

	Limiter      *ratelimit.Limiter
	Detector     *security.Detector
	ClientOrigin string
}

type Server struct {
	http.Server

	store       storage.Store
	authSvc     *auth.Service
	tokens      *auth.Tokens
	expenses    *services.ExpenseService
	recurring   *services.RecurringService
	categorizer *ai.Categorizer
	hub         *notify.Hub

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	started      time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		store:       deps.Store,
		authSvc:     deps.Auth,
		tokens:      deps.Tokens,
		expenses:    deps.Expenses,
		recurring:   deps.Recurring,
		categorizer: deps.Categorizer,
		hub:         deps.Hub,
		limiter:     deps.Limiter,
		detector:    deps.Detector,
		started:     time.Now(),
		now:         time.Now,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	if s.detector == nil {
		s.detector = security.NewDetector()
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/auth/register", s.handleRegister)
	api.HandleFunc("POST /api/auth/login", s.handleLogin)

	api.Handle("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	api.Handle("POST /api/expenses", s.requireAuth(s.handleCreateExpense))
	api.Handle("GET /api/expenses/{id}", s.requireAuth(s.handleGetExpense))
	api.Handle("PUT /api/expenses/{id}", s.requireAuth(s.handleUpdateExpense))
	api.Handle("DELETE /api/expenses/{id}", s.requireAuth(s.handleDeleteExpense))

	api.Handle("GET /api/recurring", s.requireAuth(s.handleListTemplates))
	api.Handle("POST /api/recurring", s.requireAuth(s.handleCreateTemplate))
	api.Handle("GET /api/recurring/{id}", s.requireAuth(s.handleGetTemplate))
	api.Handle("PUT /api/recurring/{id}", s.requireAuth(s.handleUpdateTemplate))
	api.Handle("DELETE /api/recurring/{id}", s.requireAuth(s.handleDeleteTemplate))

	api.Handle("POST /api/ai/categorize", s.requireAuth(s.handleCategorize))
	api.Handle("GET /api/export/csv", s.requireAuth(s.handleExportCSV))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(api))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	if deps.Notify != nil {
		mux.Handle("/", deps.Notify)
	}

	var handler http.Handler = mux
	handler = security.CORS(security.DefaultCORSConfig(deps.ClientOrigin))(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
}

// Shutdown drains the HTTP server. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}
