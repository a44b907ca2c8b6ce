package main

import (
	"strings"

	"github.com/spf13/cobra"

	"SiteChat/internal/config"
)

func newAskCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if _, ok := a.sessions.EnsureSession(cmd.Context()); !ok {
				a.logger.Warn("continuing without a chat session")
			}
			if err := a.ctrl.Send(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}

			printLog(cmd.OutOrStdout(), a.ctrl.Messages())
			return nil
		},
	}
}
