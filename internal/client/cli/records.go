package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

func newListCommand(app func() *Cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runList(cmd.Context(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newGetCommand(app func() *Cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runGet(cmd.Context(), args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")
	return cmd
}

func newPutCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> name=value...",
		Short: "Create or update a record",
		Long: `Create a record or update fields of an existing one.

Numbers and true/false are stored as numbers and booleans.
An empty value (name=) clears the field. New records need a type field.`,
		Example: "  filamentdb put spool-1 type=PLA brand=Prusament color=Black weight=1000",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runPut(cmd.Context(), args[0], args[1:])
		},
	}
}

func newDeleteCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Move a record to the recycle bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runDelete(cmd.Context(), args[0])
		},
	}
}

func (c *Cli) runList(ctx context.Context, asJSON bool) error {
	records, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if asJSON {
		return c.printJSON(records)
	}
	return c.printRecords(records)
}

func (c *Cli) runGet(ctx context.Context, key string, asJSON bool) error {
	record, err := c.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if asJSON {
		return c.printJSON(record)
	}
	c.printRecord(record)
	return nil
}

func (c *Cli) runPut(ctx context.Context, key string, args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	existing, err := c.store.Lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	var record *models.Record
	if existing == nil || existing.Deleted {
		record = &models.Record{Key: key, Fields: models.Fields{}}
	} else {
		record = existing.Clone()
	}
	var prev int64
	if existing != nil {
		prev = existing.MutatedAt
	}

	for name, value := range fields {
		if value == nil {
			delete(record.Fields, name)
			continue
		}
		record.Fields[name] = value
	}

	record.MutatedAt = crdt.NextAfter(c.clock, prev)
	if record.CreatedAt == 0 {
		record.CreatedAt = record.MutatedAt
	}

	if err := c.store.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}

	if existing == nil || existing.Deleted {
		c.io.Printf("Created %s\n", key)
	} else {
		c.io.Printf("Updated %s\n", key)
	}
	return nil
}

func (c *Cli) runDelete(ctx context.Context, key string) error {
	if err := c.store.SoftDelete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	c.io.Printf("Moved %s to the recycle bin\n", key)
	return nil
}
