package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"bookswap/internal/microservices/http-api/dto"
	"bookswap/internal/microservices/http-api/middleware"
	"bookswap/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	svc    service.ChatService
	logger *slog.Logger
}

func NewChatHandler(svc service.ChatService, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the room endpoints on an authenticated group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/rooms", h.CreateRoom)
	rg.GET("/rooms", h.ListRooms)
	rg.GET("/rooms/:id", h.GetRoom)
	rg.POST("/rooms/:id/messages", h.SendMessage)
	rg.DELETE("/rooms/:id", h.DeleteRoom)
}

// writeError maps service sentinels onto status codes.
func (h *ChatHandler) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat room not found"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, service.ErrInvalidMessage),
		errors.Is(err, service.ErrInvalidTitle),
		errors.Is(err, service.ErrSelfChat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("chat_request_failed", "op", op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *ChatHandler) userContext(c *gin.Context) (string, context.Context, context.CancelFunc, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", nil, nil, false
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	return userID, ctx, cancel, true
}

func (h *ChatHandler) CreateRoom(c *gin.Context) {
	userID, ctx, cancel, ok := h.userContext(c)
	if !ok {
		return
	}
	defer cancel()

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.svc.CreateOrGetRoom(ctx, userID, req.OtherUserID, req.BookTitle)
	if err != nil {
		h.writeError(c, "create_room", err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *ChatHandler) ListRooms(c *gin.Context) {
	userID, ctx, cancel, ok := h.userContext(c)
	if !ok {
		return
	}
	defer cancel()

	rooms, err := h.svc.ListRooms(ctx, userID)
	if err != nil {
		h.writeError(c, "list_rooms", err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *ChatHandler) GetRoom(c *gin.Context) {
	userID, ctx, cancel, ok := h.userContext(c)
	if !ok {
		return
	}
	defer cancel()

	room, err := h.svc.GetRoom(ctx, userID, c.Param("id"))
	if err != nil {
		h.writeError(c, "get_room", err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ctx, cancel, ok := h.userContext(c)
	if !ok {
		return
	}
	defer cancel()

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.SendMessage(ctx, userID, c.Param("id"), req.Message)
	if err != nil {
		h.writeError(c, "send_message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) DeleteRoom(c *gin.Context) {
	userID, ctx, cancel, ok := h.userContext(c)
	if !ok {
		return
	}
	defer cancel()

	if err := h.svc.DeleteRoom(ctx, userID, c.Param("id")); err != nil {
		h.writeError(c, "delete_room", err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "Chat room deleted successfully"})
}
