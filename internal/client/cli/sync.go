package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/filestore"
	clientsync "github.com/Pixelplanet/FilamentDB-sub000/internal/client/sync"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/config"
)

func newSyncCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runSync(cmd.Context())
		},
	}
}

func newWatchCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically and on local file changes until interrupted",
		Long: `Run sync passes every sync_interval until interrupted.

With the file backend, changes to record files trigger an early pass.
The recycle bin is swept every sweep_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runWatch(cmd.Context())
		},
	}
}

func newRemoteLogsCommand(app func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remote-logs",
		Short: "Show recent sync events recorded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app().runRemoteLogs(cmd.Context())
		},
	}
}

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("Synchronizing with server...")

	result, err := c.engine.Run(ctx)
	if result != nil {
		c.printResult(result)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func (c *Cli) printResult(result *clientsync.Result) {
	c.io.Printf("Status:     %s\n", result.Status)
	c.io.Printf("Uploaded:   %d\n", result.Uploaded)
	c.io.Printf("Downloaded: %d\n", result.Downloaded)
	if result.Errors > 0 {
		c.io.Printf("Errors:     %d\n", result.Errors)
	}
	if result.LogEntryID != "" {
		c.io.Printf("Log entry:  %s\n", result.LogEntryID)
	}
}

// runWatch запускает цикл синхронизации, очистку корзины и, для файлового backend, наблюдение за файлами
func (c *Cli) runWatch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.bin.Run(ctx, c.cfg.SweepInterval)
	}()

	if c.cfg.Backend == config.BackendFile {
		watcher, err := filestore.NewWatcher(c.cfg.DataDir, c.logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := watcher.Run(ctx, func(path string) {
				// Ручная правка получает свежий MutatedAt, иначе она не попадет в выгрузку
				if _, err := c.files.Touch(ctx, path); err != nil {
					c.logger.Warn("Failed to stamp edited record file", "path", path, "error", err)
				}
				c.store.Invalidate()
				c.engine.Trigger()
			})
			if err != nil {
				c.logger.Warn("File watcher stopped", "error", err)
			}
		}()
	}

	c.io.Printf("Watching, sync every %s. Press Ctrl+C to stop.\n", c.cfg.SyncInterval)

	err := c.engine.Loop(ctx, c.cfg.SyncInterval)
	cancel()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync loop stopped: %w", err)
	}
	return nil
}

func (c *Cli) runRemoteLogs(ctx context.Context) error {
	events, err := c.engine.RemoteLogs(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		c.io.Println("No sync events on the server.")
		return nil
	}

	w := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tCLIENT\tCHANGES\tDELETIONS\tUSER AGENT")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			formatTime(e.Timestamp), e.Status, e.ClientIP, e.ChangesCount, e.DeletionsCount, e.UserAgent)
	}
	return w.Flush()
}
