package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/config"
	"github.com/carepulse/engage/internal/handlers"
	"github.com/carepulse/engage/internal/middleware"
)

// HTTPServer wires the analytics API routes and runs the HTTP listener with
// graceful shutdown.
type HTTPServer struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	analytics *handlers.AnalyticsHandler
	redis     *redis.Client
}

// New creates a new server instance
func New(cfg *config.Config, analytics *handlers.AnalyticsHandler, redisClient *redis.Client, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		config:    cfg,
		logger:    logger,
		analytics: analytics,
		redis:     redisClient,
	}
}

// Setup initializes middleware and routes.
func (s *HTTPServer) Setup() {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		ExposeHeaders:    s.config.CORS.ExposedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           s.config.CORS.MaxAge,
	}))

	s.router.Use(middleware.RedisRateLimit(s.redis, s.config.RateLimit.Global, time.Minute, s.logger))
}

func (s *HTTPServer) setupRoutes() {
	v1 := s.router.Group("/v1")

	v1.GET("/health", s.healthCheck)
	v1.GET("/info", s.apiInfo)

	metrics := v1.Group("/analytics")
	{
		metrics.POST("/metrics", s.analytics.BeginAnalysis)
		metrics.GET("/metrics/:code", s.analytics.GetMetrics)
		metrics.GET("/download/:code/formats/:format", s.analytics.DownloadReport)

		stats := metrics.Group("/stats")
		{
			stats.GET("/basic", s.analytics.GetBasicStats)
			stats.GET("/engagement", s.analytics.GetEngagement)
			stats.GET("/features/:category", s.analytics.GetFeatureEngagement)
		}
	}
}

func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.config.StartTime).Seconds(),
	})
}

func (s *HTTPServer) apiInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     s.config.Version,
		"environment": s.config.Environment,
	})
}

// Start runs the HTTP server until an interrupt, then shuts down gracefully.
func (s *HTTPServer) Start() error {
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Port),
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		s.logger.Info("Starting server",
			zap.Int("port", s.config.Port),
			zap.String("environment", s.config.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Server exited")
	return nil
}

// Router returns the gin router for testing
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}
