package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/capture"
)

func newCaptureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "capture <source>",
		Short:   "Stream live events from a source into raw storage",
		GroupID: "pipeline",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			variant, err := sources.Lookup(name)
			if err != nil {
				return err
			}

			// Validate settings before touching the store.
			settings := a.cfg.SourceSettings(name, a.environ())
			stream, rule, err := variant.NewStream(settings, a.logger)
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			adapter := capture.NewAdapter(s, a.logger, metrics())
			err = adapter.Run(ctx, name, stream, rule)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
