// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/dormkeys/internal/config"
	"github.com/allisson/dormkeys/internal/httputil"
	keyHTTP "github.com/allisson/dormkeys/internal/keymgmt/http"
	"github.com/allisson/dormkeys/internal/metrics"
	dataHTTP "github.com/allisson/dormkeys/internal/userdata/http"
)

// Server represents the HTTP server.
type Server struct {
	db     *sql.DB
	server *http.Server
	logger *slog.Logger
	router *gin.Engine
}

// Handlers groups the route handlers mounted under /v1.
type Handlers struct {
	Keys      *keyHTTP.KeyHandler
	Devices   *keyHTTP.DeviceHandler
	AuditLogs *keyHTTP.AuditLogHandler
	Data      *dataHTTP.DataHandler
}

// NewServer creates a new HTTP server. db backs the readiness probe.
func NewServer(db *sql.DB, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine. ctx bounds background work started by
// middleware, such as rate limiter cleanup. metricsProvider may be nil.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	handlers Handlers,
	metricsProvider *metrics.Provider,
) {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.Use(httputil.UserIdentityMiddleware(s.logger))
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}

	keys := v1.Group("/keys")
	{
		keys.POST("", handlers.Keys.GenerateHandler)
		keys.POST("/verify", handlers.Keys.VerifyHandler)
		keys.POST("/rotate", handlers.Keys.RotateHandler)
		keys.POST("/revoke", handlers.Keys.RevokeHandler)
		keys.GET("/latest", handlers.Keys.LatestHandler)
	}

	devices := v1.Group("/devices")
	{
		devices.POST("", handlers.Devices.RegisterHandler)
		devices.POST("/verify", handlers.Devices.VerifyHandler)
		devices.GET("", handlers.Devices.ListHandler)
		devices.DELETE("/:fingerprint", handlers.Devices.RevokeHandler)
	}

	v1.GET("/audit-logs", handlers.AuditLogs.ListHandler)

	data := v1.Group("/data")
	{
		data.PUT("/:dataType/:dataId", handlers.Data.SaveHandler)
		data.GET("/:dataType/:dataId", handlers.Data.GetHandler)
		data.GET("/:dataType", handlers.Data.ListHandler)
		data.DELETE("/:dataType/:dataId", handlers.Data.DeleteHandler)
	}
	v1.GET("/data-stats", handlers.Data.StatsHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured: call SetupRouter first")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready only while the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	database := "ok"
	if s.db == nil {
		database = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.Any("error", err))
			database = "error"
		}
	}

	status, code := "ready", http.StatusOK
	if database != "ok" {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": gin.H{"database": database},
	})
}
