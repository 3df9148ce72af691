// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/payment-scanner/internal/logging"
	"github.com/payment-scanner/internal/models"
	"github.com/payment-scanner/internal/monitoring"
	"github.com/payment-scanner/internal/service"
	"github.com/payment-scanner/internal/types"
	"github.com/payment-scanner/internal/worker"
	"github.com/shopspring/decimal"
)

// Service interfaces for dependency injection and testing

// LedgerServiceInterface defines the ledger operations the API exposes
type LedgerServiceInterface interface {
	List(ctx context.Context) ([]*models.LedgerEntry, error)
	Get(ctx context.Context, id string) (*models.LedgerEntry, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Create(ctx context.Context, input *service.CreateTransactionInput) (*models.LedgerEntry, error)
	Update(ctx context.Context, id string, input *service.UpdateTransactionInput) (*models.LedgerEntry, error)
}

// RecordServiceInterface defines the deposit, withdrawal and bank operations
type RecordServiceInterface interface {
	ListDeposits(ctx context.Context) ([]*models.Deposit, error)
	CreateDeposit(ctx context.Context, input *service.CreateDepositInput) (*models.Deposit, error)
	ListWithdrawals(ctx context.Context) ([]*models.Withdrawal, error)
	CreateWithdrawal(ctx context.Context, input *service.CreateWithdrawalInput) (*models.Withdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id string, status types.WithdrawalStatus) error
	ListBanks(ctx context.Context) ([]*models.Bank, error)
	CreateBank(ctx context.Context, input *service.CreateBankInput) (*models.Bank, error)
}

// ScannerStatusProvider reports the scan worker's state
type ScannerStatusProvider interface {
	GetStatus() *worker.ScanWorkerStatus
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router        *mux.Router
	handler       http.Handler
	httpServer    *http.Server
	ledgerService LedgerServiceInterface
	recordService RecordServiceInterface
	scanner       ScannerStatusProvider
	store         Pinger
	metrics       *monitoring.Metrics
	config        *ServerConfig
	logger        *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int    // Requests per second per client IP, 0 disables
	RateLimitBurst  int    // Burst size per client IP
	AllowedOrigin   string // Access-Control-Allow-Origin value
}

// ServerDeps are the collaborators of the server. Scanner, Store and
// Metrics are optional.
type ServerDeps struct {
	Ledger  LedgerServiceInterface
	Records RecordServiceInterface
	Scanner ScannerStatusProvider
	Store   Pinger
	Metrics *monitoring.Metrics
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		ledgerService: deps.Ledger,
		recordService: deps.Records,
		scanner:       deps.Scanner,
		store:         deps.Store,
		metrics:       deps.Metrics,
		config:        config,
		logger:        logging.Component("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.metrics))
	s.router.Use(RecoveryMiddleware)
	if s.config.RateLimitRPS > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)))
	}

	s.setupRoutes()

	// CORS wraps the router so preflight requests reach it before method matching
	s.handler = CORSMiddleware(s.config.AllowedOrigin)(s.router)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s.handler,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(CompressionMiddleware)

	// Ledger endpoints
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/balance", s.handleGetBalance).Methods(http.MethodGet)

	// Record endpoints
	api.HandleFunc("/deposits", s.handleListDeposits).Methods(http.MethodGet)
	api.HandleFunc("/deposits", s.handleCreateDeposit).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals", s.handleListWithdrawals).Methods(http.MethodGet)
	api.HandleFunc("/withdrawals", s.handleCreateWithdrawal).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals/{id}", s.handleUpdateWithdrawal).Methods(http.MethodPut)
	api.HandleFunc("/banks", s.handleListBanks).Methods(http.MethodGet)
	api.HandleFunc("/banks", s.handleCreateBank).Methods(http.MethodPost)

	// Scanner status
	api.HandleFunc("/scanner/status", s.handleScannerStatus).Methods(http.MethodGet)
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "payment-scanner",
				"error":   "store unreachable",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "payment-scanner",
	})
}

// handleScannerStatus handles GET /api/scanner/status
func (s *Server) handleScannerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "scanner is not running in this process", nil)
		return
	}
	respondJSON(w, http.StatusOK, s.scanner.GetStatus())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
