package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"bookswap/internal/microservices/http-api/dto"
	"bookswap/internal/microservices/http-api/middleware"
	"bookswap/internal/microservices/http-api/models"
	"bookswap/internal/microservices/http-api/repository"
	"bookswap/internal/microservices/http-api/service"
	pkgmodels "bookswap/pkg/models"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 5 * time.Second

type AuthHandler struct {
	authService service.AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{authService: authService, logger: logger}
}

// RegisterRoutes mounts /signup and /login on public and /me on protected.
func (h *AuthHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/signup", h.Signup)
	public.POST("/login", h.Login)
	protected.GET("/me", h.Me)
}

func toUserDTO(u *models.User) pkgmodels.User {
	return pkgmodels.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		City:      u.City,
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	user, token, err := h.authService.Signup(ctx, pkgmodels.SignupRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		City:     req.City,
	})
	switch {
	case errors.Is(err, service.ErrNameInUse):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already taken"})
		return
	case errors.Is(err, service.ErrInvalidSignup):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("signup_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	h.logger.Info("user_signed_up", "user_id", user.ID)
	c.JSON(http.StatusCreated, pkgmodels.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserDTO(user),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	user, token, err := h.authService.Login(ctx, req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, pkgmodels.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserDTO(user),
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	user, err := h.authService.Me(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			// token outlived its account
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
			return
		}
		h.logger.Error("me_failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, toUserDTO(user))
}
