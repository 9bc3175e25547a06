package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/transfer"
)

func newTransferCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "transfer <source>",
		Short:   "Convert unprocessed raw events into messages",
		GroupID: "pipeline",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			variant, err := sources.Lookup(name)
			if err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			pub := a.newPublisher()
			defer pub.Close()

			p := transfer.New(s, pub, a.logger, metrics(), transfer.Config{
				BatchSize:  a.cfg.TransferBatchSize,
				Quarantine: a.cfg.TransferQuarantine,
			})
			res, runErr := p.Run(cmd.Context(), name, variant.Extractor())

			// Committed batches stay committed, so report them even on failure.
			if a.jsonOutput {
				if err := printJSON(a.stdout, res); err != nil {
					return err
				}
			} else {
				printTransferResult(a.stdout, name, res)
			}
			return runErr
		},
	}
}
