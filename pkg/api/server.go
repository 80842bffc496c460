package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"finance-sync/pkg/finance"
	"finance-sync/pkg/identity"
	"finance-sync/pkg/logging"
	metricsmem "finance-sync/pkg/metrics/memory"
	"finance-sync/pkg/prefs"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SessionView is the read side of identity.Session the server needs.
type SessionView interface {
	State() identity.State
	User() *identity.User
	LastError() error
}

// LedgerView is the read side of finance.Cache the server needs.
type LedgerView interface {
	CurrentBalance() decimal.Decimal
	MonthlySummary(year int, month time.Month) finance.MonthlySummary
	CategorySpending() []finance.CategoryTotal
	Transactions() []finance.Transaction
	RecentTransactions(days int) []finance.Transaction
	SearchTransactions(query string) []finance.Transaction
	TransactionsByCategory(category string) []finance.Transaction
	Budgets() []finance.Budget
	TotalBudgetProgress() finance.BudgetProgress
	Goals() []finance.Goal
}

// PreferencesView is the read side of prefs.Preferences the server needs.
type PreferencesView interface {
	Snapshot() prefs.Snapshot
}

// Snapshotter exposes an in-memory metrics snapshot.
type Snapshotter interface {
	Snapshot() metricsmem.Snapshot
}

// Deps are the components the server reports on. Nil fields disable the
// endpoints that need them.
type Deps struct {
	Session  SessionView
	Ledger   LedgerView
	Prefs    PreferencesView
	Metrics  Snapshotter
	Registry *prometheus.Registry
	Now      func() time.Time
}

// Server provides HTTP endpoints for inspecting the sync layer.
type Server struct {
	deps    Deps
	server  *http.Server
	config  ServerConfig
	started time.Time
	logger  *logging.Logger
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewServer creates the inspection server.
func NewServer(deps Deps, config ServerConfig) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{
		deps:    deps,
		config:  config,
		started: deps.Now(),
		logger:  logging.Global().Named("api"),
	}

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)
	if s.deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/budgets/progress", s.handleBudgets).Methods(http.MethodGet)
	r.HandleFunc("/goals", s.handleGoals).Methods(http.MethodGet)
	r.HandleFunc("/preferences", s.handlePreferences).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("inspection server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("inspection server listening", zap.String("addr", s.config.Address))
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.deps.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "running",
		"timestamp": s.deps.Now().Unix(),
		"uptime":    s.deps.Now().Sub(s.started).String(),
	}
	if s.deps.Session != nil {
		response["session"] = s.deps.Session.State().String()
		if user := s.deps.Session.User(); user != nil {
			response["user"] = user
		}
		if err := s.deps.Session.LastError(); err != nil {
			response["last_error"] = err.Error()
		}
	}
	if s.deps.Ledger != nil {
		response["collections"] = map[string]int{
			string(finance.CollectionTransactions): len(s.deps.Ledger.Transactions()),
			string(finance.CollectionBudgets):      len(s.deps.Ledger.Budgets()),
			string(finance.CollectionGoals):        len(s.deps.Ledger.Goals()),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusNotFound, "metrics collector does not support JSON snapshot")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) ledger(w http.ResponseWriter) bool {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger not available")
		return false
	}
	return true
}

// handleSummary reports the balance, one month's summary (default: the
// current month) and spending per category.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.ledger(w) {
		return
	}
	now := s.deps.Now()
	year, month := now.Year(), now.Month()

	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "month must be 1-12")
			return
		}
		month = time.Month(m)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance":  s.deps.Ledger.CurrentBalance(),
		"year":     year,
		"month":    int(month),
		"monthly":  s.deps.Ledger.MonthlySummary(year, month),
		"spending": s.deps.Ledger.CategorySpending(),
	})
}

// handleTransactions lists transactions, filtered by q, category or days.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !s.ledger(w) {
		return
	}
	q := r.URL.Query()

	var txns []finance.Transaction
	switch {
	case q.Get("q") != "":
		txns = s.deps.Ledger.SearchTransactions(q.Get("q"))
	case q.Get("category") != "":
		txns = s.deps.Ledger.TransactionsByCategory(q.Get("category"))
	case q.Get("days") != "":
		days, err := strconv.Atoi(q.Get("days"))
		if err != nil || days < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative number")
			return
		}
		txns = s.deps.Ledger.RecentTransactions(days)
	default:
		txns = s.deps.Ledger.Transactions()
	}
	if txns == nil {
		txns = []finance.Transaction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(txns),
		"transactions": txns,
	})
}

type budgetView struct {
	finance.Budget
	WeeklySafeLimit decimal.Decimal `json:"weekly_safe_limit"`
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	if !s.ledger(w) {
		return
	}
	budgets := s.deps.Ledger.Budgets()
	views := make([]budgetView, 0, len(budgets))
	for _, b := range budgets {
		views = append(views, budgetView{Budget: b, WeeklySafeLimit: b.WeeklySafeLimit()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   s.deps.Ledger.TotalBudgetProgress(),
		"budgets": views,
	})
}

type goalView struct {
	finance.Goal
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	if !s.ledger(w) {
		return
	}
	goals := s.deps.Ledger.Goals()
	views := make([]goalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, goalView{Goal: g, Progress: g.Progress(), Completed: g.Completed()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"goals": views})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences not available")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Prefs.Snapshot())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
