package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newBinCommand(app func() *Cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bin",
		Short: "Manage the recycle bin",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List records in the recycle bin",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app().runBinList(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "restore <key>",
			Short: "Restore a record from the recycle bin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app().runBinRestore(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "purge <key>",
			Short: "Permanently remove a record from the recycle bin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app().runBinPurge(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Purge records older than the retention period",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app().runBinSweep(cmd.Context())
			},
		},
	)

	return cmd
}

func (c *Cli) runBinList(ctx context.Context) error {
	records, err := c.bin.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recycle bin: %w", err)
	}
	return c.printRecords(records)
}

func (c *Cli) runBinRestore(ctx context.Context, key string) error {
	if err := c.bin.Restore(ctx, key); err != nil {
		return err
	}
	c.io.Printf("Restored %s\n", key)
	return nil
}

func (c *Cli) runBinPurge(ctx context.Context, key string) error {
	if err := c.bin.Purge(ctx, key); err != nil {
		return err
	}
	c.io.Printf("Purged %s\n", key)
	return nil
}

func (c *Cli) runBinSweep(ctx context.Context) error {
	purged, err := c.bin.Sweep(ctx)
	c.io.Printf("Purged %d record(s) older than %s\n", purged, c.cfg.Retention)
	return err
}
