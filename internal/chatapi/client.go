package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "sitechat/chatapi"

// maxErrorBody bounds how much of a failed response body is kept in a StatusError
const maxErrorBody = 512

// Client talks to the assistant backend's session and message endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger, slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a backend client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	histogram, err := otel.Meter(instrumentationName).Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		c.logger.Warn("failed to create request duration histogram", "error", err)
	}
	c.duration = histogram

	return c
}

// BaseURL returns the normalized backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateSession opens a new chat session and returns its identifier
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chatapi.create_session")
	defer span.End()

	var env Envelope[SessionData]
	if err := c.post(ctx, SessionPath, SessionRequest{}, &env); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}

	data, err := env.payload()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}
	if strings.TrimSpace(data.SessionID) == "" {
		err := fmt.Errorf("%w: empty session_id", ErrMalformedEnvelope)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrSessionCreation, err)
	}

	span.SetAttributes(attribute.String("session_id", data.SessionID))
	c.logger.Info("created chat session", "session_id", data.SessionID)
	return data.SessionID, nil
}

// SendMessage posts one user message and returns the assistant reply.
// A successful call with a blank reply returns ErrEmptyResponse.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "chatapi.send_message",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	req := MessageRequest{
		SessionID: sessionID,
		Message:   message,
	}

	var env Envelope[MessageData]
	if err := c.post(ctx, MessagePath, req, &env); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrMessageSend, err)
	}

	data, err := env.payload()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrMessageSend, err)
	}
	if strings.TrimSpace(data.Response) == "" {
		return "", ErrEmptyResponse
	}

	return data.Response, nil
}

// post sends a JSON body to path and decodes a 2xx JSON answer into out
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	start := time.Now()
	defer func() {
		if c.duration != nil {
			c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("http.route", path)))
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(respBody)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %w", ErrMalformedEnvelope, err)
	}
	return nil
}
