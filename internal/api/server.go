package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/storage"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

// RunService is the slice of the application service the API needs.
type RunService interface {
	StartGenericRun(ctx context.Context, req rpa.Request) (string, <-chan rpa.Result)
	StartPlatformRun(ctx context.Context, platformName, userID string) (string, error)
}

// RunHistory serves the read-only history endpoints.
type RunHistory interface {
	GetRun(id string) (*storage.RunRecord, error)
	ListRuns(limit int) ([]*storage.RunRecord, error)
	GetStats() (*storage.RunStats, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	service    RunService
	history    RunHistory
}

// NewServer creates the API server. If history is nil, the run
// history endpoints return 503.
func NewServer(cfg config.ServerConfig, svc RunService, history RunHistory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		service: svc,
		history: history,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://localhost:5500",
			"http://localhost:5501",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.POST("/run-generic-rpa", s.runGeneric)
	router.POST("/run-rpa", s.runPlatform)
	router.POST("/run-rpa-simple", s.runPlatformSimple)
	router.GET("/runs", s.listRuns)
	router.GET("/runs/:id", s.getRun)
	router.GET("/stats", s.getStats)

	s.router = router
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting api server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
