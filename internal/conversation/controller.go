package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SiteChat/internal/chatapi"
	"SiteChat/internal/config"
)

const instrumentationName = "sitechat/conversation"

var (
	// ErrEmptyMessage rejects a submission that is blank after trimming
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy rejects a submission while a previous one is still in flight
	ErrBusy = errors.New("a reply is still pending")
	// ErrNoSession is recorded when a message is sent before a session exists
	ErrNoSession = errors.New("no chat session")
)

// SessionSource exposes the current session identifier without creating one
type SessionSource interface {
	SessionID() (string, bool)
}

// Sender delivers one user message and returns the assistant reply
type Sender interface {
	SendMessage(ctx context.Context, sessionID, message string) (string, error)
}

// Observer receives a copy of the conversation after every change
type Observer func(Snapshot)

type observerEntry struct {
	id int
	fn Observer
}

// Controller owns the conversation log and drives one request/response
// cycle at a time. The typing placeholder it inserts is always removed
// before the cycle returns to idle.
type Controller struct {
	sessions SessionSource
	sender   Sender
	logger   *slog.Logger
	tracer   trace.Tracer

	replyTimeout   time.Duration
	greeting       string
	fallbackReply  string
	offlineNotice  string
	quickReplies   []string
	quickThreshold int

	// notifyMu serializes mutations with their notifications so observers
	// see snapshots in the order they were taken.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	log       []Message
	state     State
	observers []observerEntry
	nextObsID int

	sent      metric.Int64Counter
	failed    metric.Int64Counter
	fallbacks metric.Int64Counter
	latency   metric.Float64Histogram
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger, slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithReplyTimeout bounds how long a reply may take. Expiry takes the
// failure path like any other send error.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.replyTimeout = d
	}
}

// WithGreeting starts the log with a finalized assistant message
func WithGreeting(text string) Option {
	return func(c *Controller) {
		c.greeting = text
	}
}

// WithFallbackReply sets the text used when the backend returns an empty reply
func WithFallbackReply(text string) Option {
	return func(c *Controller) {
		c.fallbackReply = text
	}
}

// WithOfflineNotice sets the text used when a message could not be delivered
func WithOfflineNotice(text string) Option {
	return func(c *Controller) {
		c.offlineNotice = text
	}
}

// WithQuickReplies sets the canned prompts offered to the user
func WithQuickReplies(replies []string) Option {
	return func(c *Controller) {
		c.quickReplies = append([]string(nil), replies...)
	}
}

// WithQuickReplyThreshold shows quick replies while the log holds at most n messages
func WithQuickReplyThreshold(n int) Option {
	return func(c *Controller) {
		c.quickThreshold = n
	}
}

// FromConfig translates the widget settings of cfg into options
func FromConfig(cfg config.Config) []Option {
	return []Option{
		WithReplyTimeout(cfg.ReplyTimeout),
		WithGreeting(cfg.Greeting),
		WithFallbackReply(cfg.FallbackReply),
		WithOfflineNotice(cfg.OfflineNotice),
		WithQuickReplies(cfg.QuickReplies),
		WithQuickReplyThreshold(cfg.QuickReplyThreshold),
	}
}

// New creates a Controller reading session ids from sessions and delivering
// messages through sender
func New(sessions SessionSource, sender Sender, opts ...Option) *Controller {
	c := &Controller{
		sessions:       sessions,
		sender:         sender,
		logger:         slog.Default(),
		tracer:         otel.Tracer(instrumentationName),
		fallbackReply:  config.DefaultFallbackReply,
		offlineNotice:  config.DefaultOfflineNotice,
		quickThreshold: 1,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.greeting != "" {
		c.log = append(c.log, newMessage(RoleAssistant, c.greeting, false))
	}

	c.initMetrics()
	return c
}

func (c *Controller) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	c.sent, err = meter.Int64Counter("sitechat.messages.sent",
		metric.WithDescription("User messages submitted to the backend"))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", "sitechat.messages.sent", "error", err)
	}
	c.failed, err = meter.Int64Counter("sitechat.messages.failed",
		metric.WithDescription("Send cycles that ended with the offline notice"))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", "sitechat.messages.failed", "error", err)
	}
	c.fallbacks, err = meter.Int64Counter("sitechat.messages.fallback",
		metric.WithDescription("Send cycles answered with an empty response"))
	if err != nil {
		c.logger.Warn("failed to create counter", "name", "sitechat.messages.fallback", "error", err)
	}
	c.latency, err = meter.Float64Histogram("sitechat.reply.duration",
		metric.WithDescription("Time from submission to final reply in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		c.logger.Warn("failed to create histogram", "name", "sitechat.reply.duration", "error", err)
	}
}

// Send submits text as a user message and waits for the cycle to finish.
// Blank text returns ErrEmptyMessage and a call made while another is in
// flight returns ErrBusy; neither touches the log. Every accepted call ends
// with exactly one finalized assistant message and returns nil.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	user := newMessage(RoleUser, text, false)
	accepted := c.update(func() bool {
		if c.state != StateIdle {
			return false
		}
		c.state = StateSubmitted
		c.log = append(c.log, user)
		return true
	})
	if !accepted {
		c.logger.Debug("rejected message while busy")
		return ErrBusy
	}

	placeholder := newMessage(RoleAssistant, "", true)
	c.update(func() bool {
		c.log = append(c.log, placeholder)
		c.state = StateAwaitingResponse
		return true
	})

	ctx, span := c.tracer.Start(ctx, "conversation.send",
		trace.WithAttributes(attribute.String("message_id", user.ID)))
	defer span.End()

	start := time.Now()
	reply, err := c.exchange(ctx, text)

	final := StateResolved
	switch {
	case err == nil:
	case errors.Is(err, chatapi.ErrEmptyResponse):
		reply = c.fallbackReply
		c.add(ctx, c.fallbacks)
		c.logger.Warn("backend returned an empty reply", "message_id", user.ID)
	default:
		final = StateFailed
		reply = c.offlineNotice
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.add(ctx, c.failed)
		c.logger.Error("failed to send message", "message_id", user.ID, "error", err)
	}

	if c.latency != nil {
		c.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("state", final.String())))
	}

	answer := newMessage(RoleAssistant, reply, false)
	c.update(func() bool {
		c.removePendingLocked()
		c.log = append(c.log, answer)
		c.state = final
		return true
	})
	c.update(func() bool {
		c.state = StateIdle
		return true
	})

	span.SetAttributes(attribute.String("state", final.String()))
	return nil
}

// exchange performs the network half of a cycle
func (c *Controller) exchange(ctx context.Context, text string) (string, error) {
	sessionID, ok := c.sessions.SessionID()
	if !ok {
		return "", ErrNoSession
	}

	if c.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.replyTimeout)
		defer cancel()
	}

	c.add(ctx, c.sent)
	return c.sender.SendMessage(ctx, sessionID, text)
}

func (c *Controller) add(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}

// removePendingLocked drops every placeholder; at most one can exist
func (c *Controller) removePendingLocked() {
	kept := c.log[:0]
	for _, msg := range c.log {
		if !msg.Pending {
			kept = append(kept, msg)
		}
	}
	for i := len(kept); i < len(c.log); i++ {
		c.log[i] = Message{}
	}
	c.log = kept
}

// update applies fn under the state lock and, if fn reports a change,
// notifies observers with the resulting snapshot
func (c *Controller) update(fn func() bool) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return false
	}
	snap := c.snapshotLocked()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
	return true
}

func (c *Controller) snapshotLocked() Snapshot {
	msgs := make([]Message, len(c.log))
	copy(msgs, c.log)
	return Snapshot{Messages: msgs, State: c.state}
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// synchronously on the mutating goroutine and must not call Send.
func (c *Controller) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextObsID++
	id := c.nextObsID
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Snapshot returns a copy of the log and the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Messages returns a copy of the log
func (c *Controller) Messages() []Message {
	return c.Snapshot().Messages
}

// State returns the current cycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a submission would currently be rejected
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// QuickReplies returns the canned prompts
func (c *Controller) QuickReplies() []string {
	return append([]string(nil), c.quickReplies...)
}

// QuickRepliesVisible reports whether quick replies should be offered
func (c *Controller) QuickRepliesVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quickReplies) > 0 && len(c.log) <= c.quickThreshold
}
