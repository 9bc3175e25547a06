package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/ui"
)

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sources",
		Short:   "List the source variants this build can capture from",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := sources.Names()
			if a.jsonOutput {
				return printJSON(a.stdout, names)
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, ui.RenderCommand(name))
			}
			return nil
		},
	}
}
