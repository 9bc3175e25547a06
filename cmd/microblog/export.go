package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/config"
	"github.com/alfredjeanlab/microblog/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out   string
		useS3 bool
	)
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write a JSONL snapshot of every message",
		Long:    "Write a JSONL snapshot of every message to stdout, a file (--out), or the configured S3 bucket (--s3).",
		GroupID: "pipeline",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if out == "" && !useS3 {
				_, err := export.ExportJSONL(ctx, s, a.stdout)
				return err
			}

			if useS3 && a.cfg.ExportS3Bucket == "" {
				return errors.New("--s3 requires MB_EXPORT_S3_BUCKET")
			}
			cfg := *a.cfg
			cfg.ExportFile = out
			if !useS3 {
				cfg.ExportS3Bucket = ""
			}
			dests, err := exportDestinations(ctx, &cfg)
			if err != nil {
				return err
			}

			pub := a.newPublisher()
			defer pub.Close()

			sched := export.NewScheduler(s, dests, 0, pub, a.logger)
			if ok := sched.ExportOnce(ctx); ok < len(dests) {
				return fmt.Errorf("export: %d of %d destinations failed", len(dests)-ok, len(dests))
			}
			for _, d := range dests {
				fmt.Fprintf(a.stderr, "exported to %s\n", d.Name())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&useS3, "s3", false, "write to the configured S3 bucket")
	return cmd
}

// exportDestinations builds the destinations named by the export settings.
func exportDestinations(ctx context.Context, cfg *config.Config) ([]export.Destination, error) {
	var dests []export.Destination
	if cfg.ExportFile != "" {
		dests = append(dests, export.NewFileDestination(cfg.ExportFile))
	}
	if cfg.ExportS3Bucket != "" {
		d, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("S3 export destination: %w", err)
		}
		dests = append(dests, d)
	}
	return dests, nil
}
