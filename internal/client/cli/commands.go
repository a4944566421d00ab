package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/iocli"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/config"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/logging"
)

// rootOptions глобальные флаги
type rootOptions struct {
	configFile string
	promptKey  bool
}

// session держит Cli, открытый в PersistentPreRunE
type session struct {
	cli *Cli
}

func (s *session) close() error {
	if s.cli == nil {
		return nil
	}
	err := s.cli.Close()
	s.cli = nil
	return err
}

// Execute выполняет команду клиента с аргументами args.
// Ресурсы закрываются и при ошибке команды
func Execute(ctx context.Context, version string, args []string, in io.Reader, out, errOut io.Writer) error {
	s := &session{}
	root := newRootCommand(version, s)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, s.close())
}

// newRootCommand создает корневую команду клиента
func newRootCommand(version string, s *session) *cobra.Command {
	opts := &rootOptions{}
	v := config.NewClient()

	cmd := &cobra.Command{
		Use:           "filamentdb",
		Short:         "FilamentDB - local-first filament inventory with sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(v, opts.configFile)
			if err != nil {
				return err
			}

			stdio := iocli.New(cmd.InOrStdin(), cmd.OutOrStdout())
			if opts.promptKey {
				key, err := stdio.ReadPassword("API key: ")
				if err != nil {
					return err
				}
				cfg.APIKey, cfg.Token = key, ""
			}

			logger, logCloser, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			c, err := Open(cmd.Context(), cfg, logger, stdio)
			if err != nil {
				_ = logCloser.Close()
				return err
			}
			c.closers = append([]io.Closer{logCloser}, c.closers...)
			s.cli = c
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	flags.BoolVar(&opts.promptKey, "prompt-key", false, "read the API key from the terminal")
	flags.String("server", "", "sync server URL")
	flags.String("api-key", "", "API key for the sync server")
	flags.String("token", "", "bearer token for the sync server")
	flags.String("backend", "", "storage backend (bolt|file|remote)")
	flags.String("db", "", "path to the local state database")
	flags.String("data-dir", "", "record directory for the file backend")
	flags.String("log-level", "", "log level (debug|info|warn|error)")

	for key, flag := range map[string]string{
		"server_url": "server",
		"api_key":    "api-key",
		"token":      "token",
		"backend":    "backend",
		"db_path":    "db",
		"data_dir":   "data-dir",
		"log.level":  "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	app := func() *Cli { return s.cli }

	cmd.AddCommand(
		newSyncCommand(app),
		newWatchCommand(app),
		newStatusCommand(app),
		newListCommand(app),
		newGetCommand(app),
		newPutCommand(app),
		newDeleteCommand(app),
		newBinCommand(app),
		newLogCommand(app),
		newExportCommand(app),
		newImportCommand(app),
		newRemoteLogsCommand(app),
	)

	return cmd
}
