// Package httptransport implements chat.Transport over the BookSwap REST API.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookswap/internal/chat"
	"bookswap/pkg/models"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:8000/api/v1"
	DefaultTimeout = 15 * time.Second

	// client-side request budget, shared by all pollers using one client
	DefaultRateLimit = 5
	DefaultRateBurst = 10

	userAgent = "bookswap-cli/1.0"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config configures a Client. Zero values get defaults.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	Tokens    TokenSource
	Logger    *slog.Logger

	// OnUnauthorized runs after any 401, before the error is returned. ctx is
	// the request context.
	OnUnauthorized func(ctx context.Context, err error)

	HTTPClient *http.Client
}

// Client talks JSON to the chat endpoints.
type Client struct {
	baseURL        string
	timeout        time.Duration
	tokens         TokenSource
	logger         *slog.Logger
	onUnauthorized func(ctx context.Context, err error)
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
}

var _ chat.Transport = (*Client)(nil)

// New creates a client from cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        cfg.Timeout,
		tokens:         cfg.Tokens,
		logger:         cfg.Logger,
		onUnauthorized: cfg.OnUnauthorized,
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) CreateOrGetRoom(ctx context.Context, otherUserID, bookTitle string) (*models.ChatRoom, error) {
	req := models.CreateRoomRequest{OtherUserID: otherUserID, BookTitle: bookTitle}
	var room models.ChatRoom
	if err := c.do(ctx, "create_room", http.MethodPost, "/chat/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := c.do(ctx, "list_rooms", http.MethodGet, "/chat/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) GetRoomWithMessages(ctx context.Context, roomID string) (*models.RoomWithMessages, error) {
	var room models.RoomWithMessages
	if err := c.do(ctx, "get_room", http.MethodGet, roomPath(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) SendMessage(ctx context.Context, roomID, body string) (*models.ChatMessage, error) {
	req := models.SendMessageRequest{Message: body}
	var msg models.ChatMessage
	if err := c.do(ctx, "send_message", http.MethodPost, roomPath(roomID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, "delete_room", http.MethodDelete, roomPath(roomID), nil, nil)
}

func roomPath(roomID string) string {
	return "/chat/rooms/" + url.PathEscape(roomID)
}

// do sends one request and decodes a 2xx JSON body into out (if non-nil).
// Every failure comes back as *chat.APIError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return &chat.APIError{Op: op, Kind: chat.ErrNetwork, Message: "rate limiter", Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &chat.APIError{Op: op, Message: "encode request", Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &chat.APIError{Op: op, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return &chat.APIError{Op: op, Kind: chat.ErrAuth, Message: "no credentials", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api_request_failed", "op", op, "error", err)
		return &chat.APIError{Op: op, Kind: chat.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("api_request", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 400 {
		apiErr := errorFromResponse(op, resp)
		if apiErr.Status == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, apiErr)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTransient(err) {
			return &chat.APIError{Op: op, Status: resp.StatusCode, Kind: chat.ErrNetwork, Err: err}
		}
		return &chat.APIError{Op: op, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func errorFromResponse(op string, resp *http.Response) *chat.APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(raw))

	var envelope struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		switch {
		case envelope.Error != "":
			msg = envelope.Error
		case envelope.Detail != nil:
			msg = fmt.Sprint(envelope.Detail)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &chat.APIError{Op: op, Status: resp.StatusCode, Message: msg, Kind: kindForStatus(resp.StatusCode)}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return chat.ErrValidation
	case status == http.StatusUnauthorized:
		return chat.ErrAuth
	case status == http.StatusForbidden:
		return chat.ErrForbidden
	case status == http.StatusNotFound:
		return chat.ErrNotFound
	case status >= 500:
		return chat.ErrNetwork
	}
	return nil
}

// isTransient reports whether a body read failed because the connection or
// deadline gave out rather than because the payload was malformed.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
