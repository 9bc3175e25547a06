package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/microblog/internal/ui"
)

// helpWithColor renders cobra's usage text and, on a color terminal,
// highlights group titles and subcommand names.
func helpWithColor(cmd *cobra.Command, _ []string) {
	if !ui.ShouldUseColor() {
		_ = cmd.Usage()
		return
	}
	out := cmd.OutOrStdout()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	_ = cmd.Usage()
	cmd.SetOut(out)
	fmt.Fprint(out, colorizeHelpOutput(buf.String()))
}

// colorizeHelpOutput styles one usage text line by line. Unindented lines
// ending in ':' are titles. Lines under a command group list a name then
// its short description.
func colorizeHelpOutput(s string) string {
	lines := strings.Split(s, "\n")
	inCommands := false
	for i, line := range lines {
		switch {
		case line == "":
			inCommands = false
		case !strings.HasPrefix(line, " ") && strings.HasSuffix(line, ":"):
			inCommands = !strings.HasSuffix(line, "Flags:") && line != "Usage:"
			lines[i] = ui.RenderAccent(line)
		case inCommands && strings.HasPrefix(line, "  ") && len(line) > 2 && line[2] != ' ' && line[2] != '-':
			name, rest, ok := strings.Cut(strings.TrimPrefix(line, "  "), " ")
			if ok {
				lines[i] = "  " + ui.RenderCommand(name) + " " + rest
			}
		}
	}
	return strings.Join(lines, "\n")
}
