package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage and sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runStatus(cmd.Context())
		},
	}
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== FilamentDB Status ===")
	c.io.Printf("Backend: %s\n", c.cfg.Backend)
	c.io.Printf("Server:  %s\n", c.cfg.ServerURL)

	records, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	deleted, err := c.bin.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recycle bin: %w", err)
	}
	c.io.Printf("Records: %d active, %d in recycle bin\n", len(records), len(deleted))

	if entries := c.journal.Entries(); len(entries) > 0 {
		last := entries[0]
		c.io.Printf("Last sync: %s (%s)\n", formatTime(last.Timestamp), last.Status)
	} else {
		c.io.Println("Last sync: never")
	}

	// Ошибка не прерывает вывод статуса
	pending, err := c.engine.Pending(ctx)
	if err != nil {
		c.io.Printf("Warning: failed to get pending sync count: %v\n", err)
		return nil
	}
	if pending > 0 {
		c.io.Printf("Pending sync: %d record(s) waiting to be synchronized\n", pending)
		c.io.Println("Run 'filamentdb sync' to synchronize with server.")
	} else {
		c.io.Println("All data synchronized with server")
	}

	return nil
}
