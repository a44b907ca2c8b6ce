package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	instrumentationName = "sitechat/session"
	flightKey           = "create"
)

// Creator issues new remote chat sessions
type Creator interface {
	CreateSession(ctx context.Context) (string, error)
}

// Manager owns the lifecycle of one remote chat session. The session is
// created lazily, reused until Close, and never renewed automatically.
type Manager struct {
	creator Creator
	logger  *slog.Logger
	timeout time.Duration
	group   singleflight.Group

	mu     sync.RWMutex
	id     string
	closed bool

	attempts metric.Int64Counter
	failures metric.Int64Counter
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger, slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCreateTimeout bounds each creation request. Zero means no bound.
func WithCreateTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// New creates a Manager that opens sessions through creator
func New(creator Creator, opts ...Option) *Manager {
	m := &Manager{
		creator: creator,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	m.attempts, err = meter.Int64Counter("sitechat.session.create.attempts",
		metric.WithDescription("Session creation requests issued"))
	if err != nil {
		m.logger.Warn("failed to create counter", "name", "sitechat.session.create.attempts", "error", err)
	}
	m.failures, err = meter.Int64Counter("sitechat.session.create.failures",
		metric.WithDescription("Session creation requests that failed"))
	if err != nil {
		m.logger.Warn("failed to create counter", "name", "sitechat.session.create.failures", "error", err)
	}

	return m
}

// SessionID returns the held session identifier without creating one
func (m *Manager) SessionID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id, m.id != ""
}

// EnsureSession returns the held session, creating it first if needed.
// Concurrent callers share a single in-flight creation request. Failures are
// logged and reported as an absent session; the next call tries again.
func (m *Manager) EnsureSession(ctx context.Context) (string, bool) {
	m.mu.RLock()
	id, closed := m.id, m.closed
	m.mu.RUnlock()
	if closed {
		return "", false
	}
	if id != "" {
		return id, true
	}

	ch := m.group.DoChan(flightKey, func() (interface{}, error) {
		return m.create(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false
		}
		id := res.Val.(string)
		return id, id != ""
	case <-ctx.Done():
		// The flight keeps running and stores the id for later callers.
		return "", false
	}
}

// create performs one creation request unless another flight already stored an id
func (m *Manager) create(ctx context.Context) (string, error) {
	m.mu.RLock()
	id, closed := m.id, m.closed
	m.mu.RUnlock()
	if closed {
		return "", nil
	}
	if id != "" {
		return id, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	if m.attempts != nil {
		m.attempts.Add(ctx, 1)
	}

	newID, err := m.creator.CreateSession(ctx)
	if err != nil {
		if m.failures != nil {
			m.failures.Add(ctx, 1)
		}
		m.logger.Warn("failed to create chat session", "error", err)
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.logger.Info("discarding session created after close", "session_id", newID)
		return "", nil
	}
	m.id = newID
	m.logger.Info("chat session established", "session_id", newID)
	return newID, nil
}

// Close tears the manager down. The held session is forgotten and later
// EnsureSession calls report no session without touching the network.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.id != "" {
		m.logger.Info("chat session closed", "session_id", m.id)
	}
	m.id = ""
}
