package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/auth"
	"github.com/febril-severity-server/internal/domain"
	"github.com/febril-severity-server/internal/middleware"
	"github.com/febril-severity-server/internal/observation"
	"github.com/febril-severity-server/internal/proxy"
	"github.com/febril-severity-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

const backendHealthKey = "backend"

// breakerReporter is implemented by predictors that sit behind a circuit
// breaker.
type breakerReporter interface {
	BreakerState() string
}

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Store        domain.EvaluationStore
	Predictor    domain.Predictor
	Models       domain.ModelInspector
	Observations observation.Store
	Sessions     *auth.Service
	History      *service.HistoryEngine
	// Proxy is nil when no backend is configured.
	Proxy *proxy.Handler
	// RateLimiter is nil when rate limiting is disabled.
	RateLimiter *middleware.RateLimiter
	// StoreHealth pings the evaluation database. Nil for the in-memory store.
	StoreHealth func(ctx context.Context) error
	Logger      *logrus.Logger
	Now         func() time.Time
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	scorer        *service.SeverityScorer
	health        *expirable.LRU[string, bool]
	router        *gin.Engine
	server        *http.Server
	logger        *logrus.Logger
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	ttl := cfg.Backend.HealthTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	}
	router.Use(middleware.Session(deps.Sessions))

	server := &Server{
		configManager: configManager,
		deps:          deps,
		scorer:        service.NewSeverityScorer(),
		health:        expirable.NewLRU[string, bool](1, nil, ttl),
		router:        router,
		logger:        deps.Logger,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.deps.Proxy != nil {
		s.router.Any("/api/*path", s.deps.Proxy.Handle)
	}

	v1 := s.router.Group("/v1")
	if s.deps.RateLimiter != nil {
		v1.Use(s.deps.RateLimiter.Middleware())
	}

	v1.POST("/session/login", s.handleLogin)
	v1.POST("/session/register", s.handleRegister)
	v1.GET("/session", s.handleGetSession)
	v1.POST("/score", s.handleScore)

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth())
	{
		protected.POST("/session/logout", s.handleLogout)
		protected.PUT("/session/theme", s.handleSetTheme)

		protected.GET("/profile", s.handleGetProfile)
		protected.PUT("/profile", s.handleUpdateProfile)

		protected.POST("/predict", s.handlePredict)

		protected.POST("/evaluations", s.handleCreateEvaluation)
		protected.GET("/evaluations", s.handleListEvaluations)
		protected.GET("/evaluations/:id", s.handleGetEvaluation)
		protected.PUT("/evaluations/:id/observation", s.handleSaveObservation)

		protected.GET("/dashboard", s.handleDashboard)
		protected.GET("/performance", s.handlePerformance)

		protected.GET("/model/info", s.handleModelInfo)
		protected.GET("/model/metrics", s.handleModelMetrics)
	}
}

// handleHealth reports liveness of this server and of the prediction backend.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	backend := s.backendHealthy(ctx)

	store := true
	if s.deps.StoreHealth != nil {
		if err := s.deps.StoreHealth(ctx); err != nil {
			s.logger.WithError(err).Warn("Evaluation store is not healthy")
			store = false
		}
	}

	body := gin.H{
		"backend":   backend,
		"store":     store,
		"mode":      s.configManager.GetBackendConfig().Mode,
		"timestamp": s.deps.Now().UTC(),
		"version":   Version,
	}

	breakerOpen := false
	if br, ok := s.deps.Predictor.(breakerReporter); ok {
		state := br.BreakerState()
		body["breaker"] = state
		breakerOpen = state == "open"
	}

	body["status"] = "healthy"
	if !backend || !store || breakerOpen {
		body["status"] = "degraded"
	}
	c.JSON(http.StatusOK, body)
}

// backendHealthy caches the backend probe for the configured TTL.
func (s *Server) backendHealthy(ctx context.Context) bool {
	if healthy, ok := s.health.Get(backendHealthKey); ok {
		return healthy
	}
	healthy := s.deps.Predictor.Health(ctx)
	s.health.Add(backendHealthKey, healthy)
	if !healthy {
		s.logger.Warn("Prediction backend is not healthy")
	}
	return healthy
}
