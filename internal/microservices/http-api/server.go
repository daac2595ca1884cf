package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookswap/internal/config"
	"bookswap/internal/microservices/http-api/handler"
	"bookswap/internal/microservices/http-api/middleware"
	"bookswap/internal/microservices/http-api/repository"
	"bookswap/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server is the chat REST backend.
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewRouter wires repositories, services and handlers onto a gin engine.
// rdb may be nil.
func NewRouter(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	unreadRepo := repository.NewUnreadRepository(rdb)

	authService := service.NewAuthService(userRepo, cfg)
	chatService := service.NewChatService(chatRepo, userRepo, unreadRepo, logger)

	r.GET("/check-conn", func(c *gin.Context) {
		status := gin.H{"message": "ok", "redis": unreadRepo.Enabled()}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, status)
	})

	api := r.Group("/api/v1")
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(authService))

	handler.NewAuthHandler(authService, logger).RegisterRoutes(api, protected)
	handler.NewChatHandler(chatService, logger).RegisterRoutes(protected.Group("/chat"))

	return r
}

func NewServer(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	engine := NewRouter(cfg, db, rdb, logger)
	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http_server_listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests for up to timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
