package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/symptom-ledger-server/internal/domain"
	"github.com/symptom-ledger-server/internal/middleware"
	"github.com/symptom-ledger-server/internal/service"
)

const (
	serverVersion   = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

// Ledger is the symptom ledger as used by the HTTP layer
type Ledger interface {
	Update(ctx context.Context, userID string, assessment domain.AssessmentType) (*service.UpdateResult, error)
	RecordAssessment(ctx context.Context, snapshot *domain.AssessmentSnapshot) (*service.UpdateResult, error)
	OnBiomarkerFlagRemoved(ctx context.Context, userID, biomarker, reason string) (int, error)
	RemoveBiomarkerFlag(ctx context.Context, userID, biomarker, reason string) (*service.FlagRemovalResult, error)
	ListFlags(ctx context.Context, userID string) ([]*domain.BiomarkerFlag, error)
	GetLog(ctx context.Context, userID string) (*domain.SymptomLog, error)
	GetByCategory(ctx context.Context, userID string) (domain.Index, error)
	GetBySeverity(ctx context.Context, userID string) (domain.Index, error)
	GetByFrequency(ctx context.Context, userID string) (domain.Index, error)
	GetTotalCount(ctx context.Context, userID string) (int, error)
	GetHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error)
	Health(ctx context.Context) error
}

var _ Ledger = (*service.SymptomService)(nil)

// Server represents the HTTP server
type Server struct {
	ledger Ledger
	config domain.ServerConfig
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(ledger Ledger, cfg domain.ServerConfig, logger *logrus.Logger) *Server {
	// Set Gin mode based on the log level
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	server := &Server{
		ledger: ledger,
		config: cfg,
		logger: logger,
		router: router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled and then shuts down gracefully. A listen
// failure is returned instead of being raised from the serving goroutine.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		users := v1.Group("/users/:user_id")
		users.POST("/symptoms/update", s.handleUpdate)
		users.GET("/symptoms", s.handleGetLog)
		users.GET("/symptoms/by-category", s.handleGetByCategory)
		users.GET("/symptoms/by-severity", s.handleGetBySeverity)
		users.GET("/symptoms/by-frequency", s.handleGetByFrequency)
		users.GET("/symptoms/count", s.handleGetTotalCount)
		users.GET("/symptoms/history", s.handleGetHistory)
		users.POST("/assessments/:type", s.handleRecordAssessment)
		users.GET("/biomarkers/flags", s.handleListFlags)
		users.DELETE("/biomarkers/:biomarker/flags", s.handleRemoveFlags)

		v1.POST("/events/biomarker-flag-removed", s.handleFlagRemovedEvent)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, domain.NewLedgerError(
			domain.ErrCodeNotFound,
			"Route not found",
			c.Request.Method+" "+c.Request.URL.Path,
			c.GetString(middleware.CorrelationIDKey),
		))
	})
}

// handleHealth reports liveness and ledger store health
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.ledger.Health(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"timestamp": time.Now().UTC(),
			"version":   serverVersion,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   serverVersion,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Correlation-ID, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
