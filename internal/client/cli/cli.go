// Package cli реализует команды клиента FilamentDB поверх cobra.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/api"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/iocli"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/recordstore"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/recyclebin"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/boltdb"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/filestore"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage/remote"
	clientsync "github.com/Pixelplanet/FilamentDB-sub000/internal/client/sync"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/synclog"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/config"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
)

// Cli собранные зависимости клиента для одной команды
type Cli struct {
	io      iocli.IO
	logger  *slog.Logger
	cfg     *config.ClientConfig
	clock   *crdt.MutationClock
	fs      afero.Fs
	store   *recordstore.Store
	files   *filestore.Store
	bin     *recyclebin.Bin
	journal *synclog.Log
	engine  *clientsync.Engine
	now     func() time.Time
	closers []io.Closer
}

// Open открывает локальную базу состояния, выбранный backend и собирает движок.
// База состояния (watermark и журнал синхронизации) всегда BoltDB
func Open(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, stdio iocli.IO) (*Cli, error) {
	c := &Cli{
		io:     stdio,
		logger: logger,
		cfg:    cfg,
		clock:  crdt.NewMutationClock(),
		fs:     afero.NewOsFs(),
		now:    time.Now,
	}

	state, err := boltdb.New(ctx, cfg.DBPath, boltdb.WithLogger(logger), boltdb.WithClock(c.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	c.closers = append(c.closers, state)

	client := api.NewClient(cfg.ServerURL, api.Credentials{
		APIKey:      cfg.APIKey,
		BearerToken: cfg.Token,
	}, api.WithTimeout(cfg.Timeout))

	var backend storage.Backend
	switch cfg.Backend {
	case config.BackendBolt:
		backend = state
	case config.BackendFile:
		c.files, err = filestore.New(c.fs, cfg.DataDir, filestore.WithClock(c.clock), filestore.WithLogger(logger))
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to open data dir: %w", err)
		}
		backend = c.files
	case config.BackendRemote:
		backend = remote.New(client)
	default:
		_ = c.Close()
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}

	c.store = recordstore.New(backend, logger, recordstore.WithTTL(cfg.CacheTTL))
	c.bin = recyclebin.New(c.store, logger, recyclebin.WithRetention(cfg.Retention))

	c.journal, err = synclog.Open(ctx, c.store, logger,
		synclog.WithCapacity(cfg.LogCapacity),
		synclog.WithPersister(state),
		synclog.WithClock(c.clock))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open sync log: %w", err)
	}

	c.engine = clientsync.NewEngine(client, c.store, state, c.journal, logger, clientsync.WithClock(c.clock))

	return c, nil
}

// Close закрывает открытые ресурсы в обратном порядке
func (c *Cli) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
