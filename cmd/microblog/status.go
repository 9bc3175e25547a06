package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status <source>",
		Short:   "Show the raw backlog and message count for a source",
		GroupID: "query",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			stats := &model.SourceStats{DataSource: name}
			ds, err := s.GetDataSourceByName(ctx, name)
			switch {
			case errors.Is(err, store.ErrNotFound):
				// Never captured: report zeros.
			case err != nil:
				return fmt.Errorf("lookup datasource %q: %w", name, err)
			default:
				if stats, err = s.GetSourceStats(ctx, ds.ID); err != nil {
					return err
				}
			}

			if a.jsonOutput {
				return printJSON(a.stdout, stats)
			}
			printStats(a.stdout, stats)
			return nil
		},
	}
}
