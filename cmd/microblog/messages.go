package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/client"
	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/query"
	"github.com/alfredjeanlab/microblog/internal/server"
)

func newMessagesCmd(a *app) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:     "messages",
		Short:   "Print a random sample of stored messages",
		Long:    "Print a random sample of stored messages. By default the sample comes from the server at MB_SERVER_URL; --local reads the store directly.",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var views []*model.MessageView
			if local {
				s, err := a.openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				if views, err = query.NewSampler(s, a.cfg.SampleSeed).Sample(ctx); err != nil {
					return err
				}
			} else {
				c := client.NewHTTPClient(a.cfg.ServerURL, a.cfg.AuthToken)
				defer c.Close()
				var err error
				if views, err = c.Messages(ctx); err != nil {
					return err
				}
			}

			if a.jsonOutput {
				return printJSON(a.stdout, server.MessagesResponse{Messages: views})
			}
			printMessages(a.stdout, views)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "sample from the local store instead of the server")
	return cmd
}
