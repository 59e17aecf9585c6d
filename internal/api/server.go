package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/config"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/health"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/tools"
)

const (
	defaultRequestsPerMinute = 600
	defaultBurst             = 60
	maxBodyBytes             = 1 << 20
	maxAuditPage             = 500
)

// Dispatcher runs named tools. *tools.Dispatcher satisfies it.
type Dispatcher interface {
	Call(ctx context.Context, frontend, name string, args map[string]any) (any, error)
	Names() []string
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	dispatcher  Dispatcher
	audit       logging.AuditStore
	health      *health.Tracker
	mcpPath     string
	mcpHandler  http.Handler
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithAuditStore exposes the ledger on GET /api/audit.
func WithAuditStore(store logging.AuditStore) Option {
	return func(s *Server) {
		s.audit = store
	}
}

// WithHealthTracker exposes upstream health on GET /api/status.
func WithHealthTracker(t *health.Tracker) Option {
	return func(s *Server) {
		s.health = t
	}
}

// WithMCPHandler mounts the streamable MCP handler at path.
func WithMCPHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.mcpPath = path
		s.mcpHandler = h
	}
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, d Dispatcher, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		router:     gin.New(),
		config:     cfg,
		apiConfig:  apiCfg,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.logger == nil {
		server.logger = logging.NewLogger()
	}
	if server.metrics == nil {
		server.metrics = metrics.NewMetrics("aem_assets")
	}

	// Initialize rate limiter from config with sane defaults
	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	server.rateLimiter = newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server.router.HandleMethodNotAllowed = true
	server.router.Use(gin.Recovery())
	if server.audit != nil {
		server.router.Use(accessAuditMiddleware(server.audit))
	}
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(bodyLimitMiddleware(maxBodyBytes))
	server.router.Use(metrics.Middleware(server.metrics, server.logger, "/metrics"))
	server.router.Use(loggingMiddleware(server.logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware attaches a correlation ID and logs each request
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(logging.CorrelationIDHeader)
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(logging.CorrelationIDHeader, correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/", s.handleInfo)
	s.router.GET("/api/mcp", s.handleInfo)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	toolGroup := s.router.Group("")
	toolGroup.Use(authMiddleware)
	{
		toolGroup.POST("/api/mcp", s.handleToolCall)
		toolGroup.GET("/api/audit", s.handleAuditEvents)
		toolGroup.GET("/api/status", s.handleStatus)
	}

	if s.mcpHandler != nil {
		mcpGroup := s.router.Group(s.mcpPath)
		mcpGroup.Use(authMiddleware)
		mcpGroup.Any("", gin.WrapH(s.mcpHandler))
	}
}

// Run starts the HTTP server
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &errors.ErrServerStart{Addr: addr, Err: err}
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err.Error())
		return &errors.ErrServerShutdown{Err: err}
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": models.ServiceName,
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, models.NewServerInfo(s.dispatcher.Names()))
}

// ToolRequest is the body of POST /api/mcp
type ToolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// handleToolCall runs one tool. Invocation errors are 400s; operation
// failures are reported in-band with a 200 so callers can show the message.
func (s *Server) handleToolCall(c *gin.Context) {
	var req ToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "bad_request",
			Message: "invalid JSON body: " + err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	result, err := s.dispatcher.Call(c.Request.Context(), tools.FrontendHTTP, req.Tool, req.Arguments)
	if err != nil {
		if errors.IsClientError(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": nil, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// handleStatus reports how the IMS and AEM surfaces have been answering.
// It never calls upstream itself.
func (s *Server) handleStatus(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "upstream health tracking is disabled",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, s.health.Report())
}

// handleAuditEvents lists recent audit events, newest first
func (s *Server) handleAuditEvents(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "audit ledger is disabled",
			Code:    http.StatusNotFound,
		})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "bad_request",
				Message: "limit must be a positive integer",
				Code:    http.StatusBadRequest,
			})
			return
		}
		limit = min(n, maxAuditPage)
	}

	filters := logging.AuditQueryFilters{
		EventType: c.Query("type"),
		Status:    c.Query("status"),
		Resource:  c.Query("resource"),
		Actor:     c.Query("actor"),
		Limit:     limit,
		OrderDesc: true,
	}

	events, err := s.audit.QueryEvents(c.Request.Context(), filters)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "audit query failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "audit query failed",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if events == nil {
		events = []*logging.AuditEvent{}
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
