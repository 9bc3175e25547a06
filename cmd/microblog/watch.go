package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/ui"
)

func newWatchCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Follow transfer, quarantine, and export events on the bus",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.NATSURL == "" {
				return errors.New("watch requires MB_NATS_URL")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sub, err := events.NewNATSSubscriber(a.cfg.NATSURL,
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					a.logger.Warn("nats disconnected", "err", err)
				}),
				nats.ReconnectHandler(func(_ *nats.Conn) {
					a.logger.Info("nats reconnected")
				}),
			)
			if err != nil {
				return err
			}
			defer sub.Close()

			return watchEvents(ctx, sub, a.stdout, a.jsonOutput, count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}

// watchEvents prints every event under events.TopicPrefix until ctx is
// done, the subscription closes, or limit events have been printed.
func watchEvents(ctx context.Context, sub events.Subscriber, w io.Writer, jsonOutput bool, limit int) error {
	ch, cancel, err := sub.Subscribe(events.TopicPrefix)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if jsonOutput {
				if err := printJSON(w, struct {
					Topic string          `json:"topic"`
					Data  json.RawMessage `json:"data"`
				}{env.Topic, env.Data}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "%s %s\n", ui.RenderAccent(env.Topic), env.Data)
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}
