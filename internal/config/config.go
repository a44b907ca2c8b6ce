package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Environment variables consulted by FromEnv
const (
	EnvBackendURL       = "SITECHAT_BACKEND_URL"
	EnvLegacyBackendURL = "REACT_APP_BACKEND_URL"
	EnvQuickReplyLimit  = "SITECHAT_QUICK_REPLY_THRESHOLD"
	EnvReplyTimeout     = "SITECHAT_REPLY_TIMEOUT"
	EnvLogDir           = "SITECHAT_LOG_DIR"
)

const DefaultBackendURL = "http://localhost:8001"

const (
	DefaultGreeting = "SYSTEM_INITIALIZED\n> Welcome to NOWHERE Digital AI Assistant\n> How can I help you dominate the digital matrix today?"

	DefaultFallbackReply = "I apologize, but I cannot process your request at the moment. Please contact our team directly."

	DefaultOfflineNotice = "> CONNECTION_ERROR\n> I am currently offline. Please contact us directly at info@nowheredigital.ae or +971 XX XXX XXXX"
)

// DefaultQuickReplies are the canned prompts offered before the conversation gets going
var DefaultQuickReplies = []string{
	"Tell me about your services",
	"I need help with digital marketing",
	"What are your pricing plans?",
	"How can AI help my business?",
	"I want to book a consultation",
}

// Config holds application configuration
type Config struct {
	BackendURL     string        // Base URL of the assistant backend, read once at startup
	RequestTimeout time.Duration // HTTP client timeout, 0 disables it
	ReplyTimeout   time.Duration // Per-message reply timeout, 0 leaves replies unbounded
	Debug          bool

	// Widget behaviour
	QuickReplyThreshold int // Quick replies stay visible while the log holds at most this many messages
	QuickReplies        []string
	Greeting            string // Optional first assistant message, empty disables it
	FallbackReply       string // Shown when the backend answers with an empty response
	OfflineNotice       string // Shown when a message could not be delivered

	LogDir string

	// Stand-in backend
	StubAddr string
	StubDB   string
}

// Default returns a Config populated with the built-in defaults
func Default() Config {
	replies := make([]string, len(DefaultQuickReplies))
	copy(replies, DefaultQuickReplies)

	return Config{
		BackendURL:          DefaultBackendURL,
		RequestTimeout:      60 * time.Second,
		QuickReplyThreshold: 1,
		QuickReplies:        replies,
		Greeting:            DefaultGreeting,
		FallbackReply:       DefaultFallbackReply,
		OfflineNotice:       DefaultOfflineNotice,
		LogDir:              "logs",
		StubAddr:            ":8001",
		StubDB:              "sitechat_stub.db",
	}
}

// FromEnv returns the defaults overridden by the process environment
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.BackendURL = v
	} else if v := os.Getenv(EnvLegacyBackendURL); v != "" {
		cfg.BackendURL = v
	}

	if v := os.Getenv(EnvQuickReplyLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvQuickReplyLimit, err)
		}
		cfg.QuickReplyThreshold = n
	}

	if v := os.Getenv(EnvReplyTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvReplyTimeout, err)
		}
		cfg.ReplyTimeout = d
	}

	if v := os.Getenv(EnvLogDir); v != "" {
		cfg.LogDir = v
	}

	return cfg, nil
}

// Validate checks the settings the chat client depends on
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend URL must be http or https, got %q", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend URL has no host: %q", c.BackendURL)
	}
	if c.QuickReplyThreshold < 0 {
		return fmt.Errorf("quick reply threshold must not be negative")
	}
	if c.RequestTimeout < 0 || c.ReplyTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
