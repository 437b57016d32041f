// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/logging"
	"github.com/emp-backend/internal/models"
	"github.com/emp-backend/internal/service"
	"github.com/gorilla/mux"
)

// EmployeeServiceInterface defines the employee operations the API exposes
type EmployeeServiceInterface interface {
	ListEmployees(ctx context.Context, input *service.ListEmployeesInput) ([]*models.Employee, error)
	GetEmployee(ctx context.Context, id int64) (*models.Employee, error)
	CreateEmployee(ctx context.Context, input *service.EmployeeInput) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, id int64, input *service.EmployeeInput) (*models.Employee, error)
	DeleteEmployee(ctx context.Context, id int64) (*service.DeleteEmployeeResult, error)
	GetHistory(ctx context.Context, id int64, limit int) ([]*models.EmployeeEvent, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// healthCheckTimeout bounds each dependency check in /health
const healthCheckTimeout = 2 * time.Second

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	employeeService EmployeeServiceInterface
	healthChecks    map[string]HealthCheck
	config          *ServerConfig

	mu       sync.Mutex
	listener net.Listener
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	RequestsPerSec  int // per client
	Burst           int

	// TrustedProxies may set X-Forwarded-For for rate limiting
	TrustedProxies TrustedProxies

	// Limiter replaces the in-process limiter when set, e.g. to share
	// counters between instances.
	Limiter Limiter
}

// NewServer creates a new API server instance. healthChecks may be nil.
func NewServer(config *ServerConfig, employeeService EmployeeServiceInterface, healthChecks map[string]HealthCheck) *Server {
	if healthChecks == nil {
		healthChecks = map[string]HealthCheck{}
	}

	s := &Server{
		router:          mux.NewRouter(),
		employeeService: employeeService,
		healthChecks:    healthChecks,
		config:          config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	var limiter Limiter = s.config.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(s.config.RequestsPerSec, s.config.Burst)
	}

	// Order matters: request ID first so every later log line carries it.
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(limiter, float64(s.config.RequestsPerSec), s.config.TrustedProxies))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// OPTIONS is listed so preflight requests reach the CORS middleware.
	api.HandleFunc("/employees", s.handleListEmployees).Methods("GET")
	api.HandleFunc("/employees", s.handleCreateEmployee).Methods("POST", "OPTIONS")
	api.HandleFunc("/employees/{id}", s.handleGetEmployee).Methods("GET")
	api.HandleFunc("/employees/{id}", s.handleUpdateEmployee).Methods("PUT", "OPTIONS")
	api.HandleFunc("/employees/{id}", s.handleDeleteEmployee).Methods("DELETE")
	api.HandleFunc("/employees/{id}/history", s.handleGetHistory).Methods("GET")
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := HealthResponse{
		Status:       "healthy",
		Service:      "emp-backend",
		Dependencies: make(map[string]string, len(names)),
	}
	status := http.StatusOK

	for _, name := range names {
		if err := s.healthChecks[name](ctx); err != nil {
			unavailable := apperrors.NewServiceUnavailableError(name)
			unavailable.Cause = err
			logging.FromContext(r.Context()).WithError(unavailable).WithField("dependency", name).Warn("Health check failed")
			response.Dependencies[name] = "down"
			response.Status = "unhealthy"
			status = apperrors.GetHTTPStatusCode(unavailable)
			continue
		}
		response.Dependencies[name] = "up"
	}

	respondJSON(w, status, response)
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server already listening")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Serve accepts connections until Shutdown. It binds first when Listen was
// not called. A graceful shutdown returns nil.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.listener
		s.mu.Unlock()
	}

	logging.WithField("addr", ln.Addr().String()).Info("Starting API server")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	err := s.httpServer.Shutdown(ctx)

	// Listen without Serve leaves a listener http.Server does not track.
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	return err
}
