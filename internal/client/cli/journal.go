package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLogCommand(app func() *Cli) *cobra.Command {
	var asJSON bool

	list := &cobra.Command{
		Use:   "list",
		Short: "Show the local sync log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runLogList(asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print entries with their changes as JSON")

	undo := &cobra.Command{
		Use:   "undo <entry-id>",
		Short: "Revert the changes applied by a sync log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runLogUndo(cmd.Context(), args[0])
		},
	}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and undo sync passes",
	}
	cmd.AddCommand(list, undo)
	return cmd
}

func (c *Cli) runLogList(asJSON bool) error {
	entries := c.journal.Entries()
	if asJSON {
		return c.printJSON(entries)
	}
	if len(entries) == 0 {
		c.io.Println("Sync log is empty.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDIRECTION\tSTATUS\tCHANGES\tUP\tDOWN\tERRORS\tUNDONE")
	for _, e := range entries {
		undone := ""
		if e.UndoneAt != 0 {
			undone = formatTime(e.UndoneAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			e.ID, formatTime(e.Timestamp), e.Direction, e.Status, len(e.Changes),
			e.Summary.Uploaded, e.Summary.Downloaded, e.Summary.Errors, undone)
	}
	return w.Flush()
}

func (c *Cli) runLogUndo(ctx context.Context, id string) error {
	result := c.journal.Undo(ctx, id)
	if !result.Success {
		return fmt.Errorf("undo failed: %s", result.Message)
	}
	c.io.Println(result.Message)
	return nil
}
