package cli

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/backup"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
)

type exportOptions struct {
	s3Bucket string
	dir      string
	output   string
}

func newExportCommand(app func() *Cli) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export active records as a zip archive",
		Long: `Export active records as a zip archive.

The archive goes to --output, to S3 (--s3-bucket or backup.s3_bucket)
or to a directory (--dir or backup.dir), in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runExport(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.s3Bucket, "s3-bucket", "", "upload the archive to this S3 bucket")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "write the archive into this directory")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the archive to this file")
	return cmd
}

func newImportCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.zip>",
		Short: "Import records from a zip archive, keeping newer local versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runImport(cmd.Context(), args[0])
		},
	}
}

func (c *Cli) runExport(ctx context.Context, opts *exportOptions) error {
	if opts.output != "" {
		blob, err := c.store.ExportAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to export records: %w", err)
		}
		if err := afero.WriteFile(c.fs, opts.output, blob, 0o600); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}
		c.io.Printf("Exported to %s\n", opts.output)
		return nil
	}

	s3cfg := backup.S3Config{
		Bucket:    c.cfg.Backup.S3Bucket,
		Region:    c.cfg.Backup.S3Region,
		Endpoint:  c.cfg.Backup.S3Endpoint,
		Prefix:    c.cfg.Backup.S3Prefix,
		PathStyle: c.cfg.Backup.S3PathStyle,
	}
	dir := c.cfg.Backup.Dir
	switch {
	case opts.s3Bucket != "":
		s3cfg.Bucket, dir = opts.s3Bucket, ""
	case opts.dir != "":
		s3cfg.Bucket, dir = "", opts.dir
	}

	sink, err := backup.NewSink(ctx, s3cfg, c.fs, dir)
	if err != nil {
		return err
	}

	location, err := backup.Export(ctx, c.store, sink, c.now())
	if err != nil {
		return err
	}

	c.io.Printf("Exported to %s\n", location)
	return nil
}

func (c *Cli) runImport(ctx context.Context, path string) error {
	blob, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	result, err := c.store.ImportAll(ctx, blob)
	if err != nil {
		return fmt.Errorf("failed to import archive: %w", err)
	}

	status := models.StatusSuccess
	if len(result.Errors) > 0 {
		status = models.StatusPartial
	}
	// импорт фиксируется в журнале как ручная операция
	entry := &models.SyncLogEntry{
		Direction: models.DirectionManual,
		Status:    status,
		Summary: models.SyncSummary{
			Downloaded: result.Imported,
			Errors:     len(result.Errors),
		},
	}
	if err := c.journal.Append(ctx, entry); err != nil {
		c.logger.Warn("Failed to record import in sync log", "error", err)
	}

	c.io.Printf("Imported: %d, skipped: %d\n", result.Imported, result.Skipped)
	for _, msg := range result.Errors {
		c.io.Printf("  error: %s\n", msg)
	}
	return nil
}
