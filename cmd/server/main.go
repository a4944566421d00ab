package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/iocli"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/config"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crypto"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/logging"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/jwt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/metrics"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/middleware"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var errNoAuth = errors.New("no authentication configured: set api_key_hash and/or jwt_secret")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")
	configFile := flag.String("config", "", "Path to config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	issueToken := flag.String("issue-token", "", "Print a bearer token for the device ID and exit")
	hashKey := flag.Bool("hash-key", false, "Read an API key and print its bcrypt hash for api_key_hash")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		return nil
	}

	if *hashKey {
		return printKeyHash()
	}

	v := config.NewServer()
	if *addr != "" {
		v.Set("addr", *addr)
	}
	if *dbPath != "" {
		v.Set("db_path", *dbPath)
	}

	cfg, err := config.LoadServer(v, *configFile)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	var tokens *jwt.Service
	if cfg.JWTSecret != "" {
		tokens, err = jwt.NewService(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return fmt.Errorf("failed to create token service: %w", err)
		}
	}

	if *issueToken != "" {
		if tokens == nil {
			return errors.New("jwt_secret is required to issue tokens")
		}
		token, err := tokens.Issue(*issueToken)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	if cfg.APIKeyHash == "" && tokens == nil {
		return errNoAuth
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	router := server.NewRouter(server.Deps{
		Logger:  logger,
		Storage: store,
		DB:      store.DB(),
		Auth:    middleware.NewAuthenticator(cfg.APIKeyHash, tokens),
		Metrics: m,
		RateLimit: server.RateLimit{
			Rate:       cfg.RateLimit,
			Window:     cfg.RateWindow,
			SyncRate:   cfg.SyncRateLimit,
			ImportRate: cfg.ImportRateLimit,
		},
	})

	logger.Info("FilamentDB server starting", "version", Version, "db", cfg.DBPath, "metrics", cfg.Metrics)

	return server.New(cfg.Addr, router, logger).Run(ctx)
}

func printKeyHash() error {
	key, err := iocli.NewStdio().ReadPassword("API key: ")
	if err != nil {
		return fmt.Errorf("failed to read api key: %w", err)
	}
	hash, err := crypto.HashAPIKey(key, 0)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func printVersion() {
	fmt.Printf("FilamentDB Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
