package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"SiteChat/internal/chatapi"
	"SiteChat/internal/config"
	"SiteChat/internal/conversation"
	"SiteChat/internal/session"
	"SiteChat/internal/telemetry"
	"SiteChat/internal/tui"
)

// app bundles the wired components shared by the subcommands
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	client   *chatapi.Client
	sessions *session.Manager
	ctrl     *conversation.Controller
	cleanup  func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	client := chatapi.NewClient(cfg.BackendURL, cfg.RequestTimeout, chatapi.WithLogger(logger))
	sessions := session.New(client,
		session.WithLogger(logger),
		session.WithCreateTimeout(cfg.RequestTimeout),
	)
	opts := append(conversation.FromConfig(cfg), conversation.WithLogger(logger))
	ctrl := conversation.New(sessions, client, opts...)

	logger.Info("chat client ready", "backend_url", client.BaseURL())

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		sessions: sessions,
		ctrl:     ctrl,
		cleanup: func() {
			sessions.Close()
			shutdown()
			logFile.Close()
		},
	}, nil
}

func printLog(w io.Writer, msgs []conversation.Message) {
	for _, msg := range msgs {
		speaker := "Bot"
		if msg.Role == conversation.RoleUser {
			speaker = "You"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n\n", msg.CreatedAt.Format("15:04"), speaker, msg.Text)
	}
}

func newRootCommand() *cobra.Command {
	cfg, envErr := config.FromEnv()

	root := &cobra.Command{
		Use:           "sitechat",
		Short:         "Chat with the site assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envErr
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.cleanup()
			return tui.Run(a.ctrl, a.sessions)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "Assistant backend base URL (env "+config.EnvBackendURL+")")
	flags.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "HTTP request timeout, 0 disables it")
	flags.DurationVar(&cfg.ReplyTimeout, "reply-timeout", cfg.ReplyTimeout, "Give up on a reply after this long, 0 waits forever")
	flags.IntVar(&cfg.QuickReplyThreshold, "quick-reply-threshold", cfg.QuickReplyThreshold, "Show quick replies while the log has at most this many messages")
	flags.StringVar(&cfg.Greeting, "greeting", cfg.Greeting, "Initial assistant message, empty disables it")
	flags.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for logs, traces and metrics")
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	root.AddCommand(newAskCommand(&cfg), newStubCommand(&cfg))
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
