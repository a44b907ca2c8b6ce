// Package stubserver provides a local stand-in for the assistant backend so
// the chat client can be exercised without the production service.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"SiteChat/internal/chatapi"
)

// Responder produces the assistant reply for a user message
type Responder func(message string) string

// EchoResponder mirrors the placeholder answers of the hosted backend
func EchoResponder(message string) string {
	return fmt.Sprintf("Thank you for your message: '%s'. I'm currently being set up and will provide full AI responses soon. In the meantime, please feel free to use our contact form or booking system to get in touch with our team at NOWHERE Digital.", message)
}

// Server is the stand-in backend HTTP server
type Server struct {
	echo      *echo.Echo
	store     *Store
	responder Responder
	logger    *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithResponder replaces EchoResponder
func WithResponder(r Responder) Option {
	return func(s *Server) {
		s.responder = r
	}
}

// WithLogger sets the logger, slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a stand-in backend on top of store
func NewServer(store *Store, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		store:     store,
		responder: EchoResponder,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))

	// Register routes
	e.GET("/health", s.handleHealth)
	e.POST(chatapi.SessionPath, s.handleCreateSession)
	e.POST(chatapi.MessagePath, s.handleMessage)

	return s
}

// Handler exposes the router, mainly for httptest
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	s.logger.Info("stub backend listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type sessionEnvelope struct {
	Success bool                `json:"success"`
	Data    chatapi.SessionData `json:"data"`
}

type messageEnvelope struct {
	Success bool                `json:"success"`
	Data    chatapi.MessageData `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

// handleCreateSession handles POST /api/chat/session
func (s *Server) handleCreateSession(c echo.Context) error {
	id := uuid.NewString()
	if err := s.store.CreateSession(c.Request().Context(), id, time.Now()); err != nil {
		s.logger.Error("failed to create session", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Detail: "failed to create session"})
	}

	s.logger.Info("session created", "session_id", id)
	return c.JSON(http.StatusOK, sessionEnvelope{
		Success: true,
		Data:    chatapi.SessionData{SessionID: id},
	})
}

// handleMessage handles POST /api/chat/message
func (s *Server) handleMessage(c echo.Context) error {
	var req chatapi.MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "message is required"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Detail: "session_id is required"})
	}

	reply := s.responder(req.Message)
	err := s.store.AppendExchange(c.Request().Context(), req.SessionID, req.Message, reply)
	if errors.Is(err, ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorBody{Detail: "unknown session"})
	}
	if err != nil {
		s.logger.Error("failed to store exchange", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody{Detail: "failed to store message"})
	}

	return c.JSON(http.StatusOK, messageEnvelope{
		Success: true,
		Data:    chatapi.MessageData{Response: reply},
	})
}
