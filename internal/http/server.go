// Package http exposes the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Options tunes the server. Zero values select defaults.
type Options struct {
	// RateLimitPerMinute caps API requests per client (default: 120)
	RateLimitPerMinute int

	// CacheCleanupInterval is how often expired cache entries are dropped (default: 10m)
	CacheCleanupInterval time.Duration

	Logger *log.Logger
}

type Server struct {
	http.Server
	svc    *services.LedgerService
	logger *log.Logger

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector
	caches   *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 120
	}
	if opts.CacheCleanupInterval <= 0 {
		opts.CacheCleanupInterval = 10 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	detector := security.NewDetector(logger)
	s := &Server{
		svc:      svc,
		logger:   logger.WithComponent(log.ComponentHTTP),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		caches:   cache.NewManager(),
	}
	s.caches.Register(svc.StatusCache())
	s.caches.StartCleanup(opts.CacheCleanupInterval)

	api := http.NewServeMux()
	s.routes(api)

	limited := s.limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(log.ComponentMiddleware(log.ComponentHTTP)(api))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/api/", limited)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           headers.Middleware(s.tracer.Middleware(detector.Middleware(root))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /api/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /api/accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("GET /api/accounts/{id}/balance", s.handleGetBalance)
	mux.HandleFunc("POST /api/accounts/{id}/recompute", s.handleRecomputeBalance)
	mux.HandleFunc("POST /api/accounts/{id}/adjust", s.handleAdjustBalance)
	mux.HandleFunc("POST /api/accounts/reconcile", s.handleReconcileAll)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/budgets/status", s.handleMonthlyStatus)
	mux.HandleFunc("GET /api/budgets/active", s.handleActiveBudgets)
	mux.HandleFunc("GET /api/budgets/unbudgeted-spent", s.handleUnbudgetedSpent)
	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/budgets/{id}", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	s.groupRoutes(mux, "/api/budget-groups", core.BudgetGroupKind)
	mux.HandleFunc("GET /api/budget-groups/{id}/budgets", s.handleGroupBudgets)
	s.groupRoutes(mux, "/api/rule-groups", core.RuleGroupKind)
	mux.HandleFunc("GET /api/rule-groups/{id}/rules", s.handleGroupRules)

	mux.HandleFunc("GET /api/settings/forecasted-monthly-income", s.handleGetForecastedIncome)
	mux.HandleFunc("PUT /api/settings/forecasted-monthly-income", s.handlePutForecastedIncome)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/category-groups", s.handleListCategoryGroups)
	mux.HandleFunc("POST /api/category-groups", s.handleCreateCategoryGroup)

	mux.HandleFunc("GET /api/reports/balance", s.handleBalanceReport)
	mux.HandleFunc("GET /api/reports/spending", s.handleSpendingReport)
	mux.HandleFunc("GET /api/reports/flows", s.handleFlowReport)

	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("POST /api/rules/run", s.handleRunAllRules)
	mux.HandleFunc("POST /api/rules/test", s.handleTestConditions)
	mux.HandleFunc("GET /api/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/rules/{id}/run", s.handleRunRule)

	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, ErrorBody{
		Error:     "rate limit exceeded, retry later",
		Kind:      "rate_limited",
		RequestID: trace.GetRequestID(r.Context()),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.svc.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type metricsResponse struct {
	Requests         int64 `json:"requests"`
	AvgResponseMicro int64 `json:"avg_response_us"`
	RateLimitHits    int64 `json:"rate_limit_hits"`
	RateLimitClients int64 `json:"rate_limit_clients"`
	Suspicious       int64 `json:"suspicious_requests"`
	InvalidIPs       int64 `json:"invalid_ip_attempts"`
	StatusCacheSize  int   `json:"status_cache_entries"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	rm := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()
	writeJSON(w, http.StatusOK, metricsResponse{
		Requests:         tm.TotalRequests,
		AvgResponseMicro: tm.AverageResponseTime,
		RateLimitHits:    rm.TotalHits,
		RateLimitClients: rm.ClientCount,
		Suspicious:       dm.SuspiciousRequests,
		InvalidIPs:       dm.InvalidIPAttempts,
		StatusCacheSize:  s.svc.StatusCache().Size(),
	})
}
