package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/transfer"
	"github.com/alfredjeanlab/microblog/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printMessages(w io.Writer, views []*model.MessageView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tMESSAGE")
	for _, v := range views {
		msg := v.Message
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\n", v.DataSourceName, msg)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d messages\n", len(views))
}

func printStats(w io.Writer, stats *model.SourceStats) {
	fmt.Fprintf(w, "Source:       %s\n", ui.RenderAccent(stats.DataSource))
	fmt.Fprintf(w, "Raw:          %d\n", stats.Raw)
	fmt.Fprintf(w, "Unprocessed:  %s\n", ui.RenderCount(stats.Unprocessed))
	fmt.Fprintf(w, "Quarantined:  %s\n", ui.RenderCount(stats.Quarantined))
	fmt.Fprintf(w, "Messages:     %d\n", stats.Messages)
}

func printTransferResult(w io.Writer, source string, res transfer.Result) {
	fmt.Fprintf(w, "%s %s: %d messages in %d batches\n",
		ui.RenderOK("✓"), source, res.Messages, res.Batches)
	if n := len(res.Quarantined); n > 0 {
		fmt.Fprintf(w, "%s %d raw records quarantined: %v\n", ui.RenderWarn("!"), n, res.Quarantined)
	}
}
