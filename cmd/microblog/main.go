package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/config"
	"github.com/alfredjeanlab/microblog/internal/observability"
	"github.com/alfredjeanlab/microblog/internal/ui"
)

// app carries the state shared by every command in one invocation.
type app struct {
	jsonOutput bool
	configPath string

	cfg    *config.Config
	logger *slog.Logger

	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
}

func newApp() *app {
	return &app{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		environ: os.Environ,
		logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "microblog <command>",
		Short:         "Capture, transfer, and sample microblog messages",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(a.stderr, cfg.LogLevel, cfg.LogFormat)
			ui.SetColor(ui.ShouldUseColor())
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv("MB_CONFIG"), "TOML config file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "query", Title: "Query:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(helpWithColor)

	// Pipeline
	rootCmd.AddCommand(newCaptureCmd(a))
	rootCmd.AddCommand(newTransferCmd(a))
	rootCmd.AddCommand(newExportCmd(a))

	// Query
	rootCmd.AddCommand(newMessagesCmd(a))
	rootCmd.AddCommand(newOpenAPICmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))

	// System
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newSourcesCmd(a))

	return rootCmd
}

func main() {
	a := newApp()
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(a.stderr, ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
