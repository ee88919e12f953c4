package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/birbparty/flox-go/internal/devserver"
	"github.com/birbparty/flox-go/internal/export"
	"github.com/birbparty/flox-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := devserver.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Flags override the environment
	flagSet := pflag.NewFlagSet("floxd", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Host, "host", cfg.Host, "address to bind")
	flagSet.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	flagSet.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "Redis address (in-memory store if empty)")
	flagSet.BoolVar(&cfg.CompressResponses, "compress", cfg.CompressResponses, "send zlib-compressed responses")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	telemetryConfig := telemetry.NewConfigFromEnv("floxd")
	telemetryConfig.ServiceVersion = cfg.Version
	if err := telemetry.Init(telemetryConfig); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(ctx)
	}()

	logger := telemetry.L()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	server := devserver.New(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startRetention(ctx, cfg, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("🛑 Shutting down gracefully...")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server forced to shutdown")
	}
	return nil
}

// openStore connects to Redis when an address is configured and falls back
// to the in-memory store otherwise.
func openStore(cfg *devserver.Config) (devserver.Store, error) {
	logger := telemetry.L()

	if cfg.Redis.Addr == "" {
		logger.Info("✅ Using in-memory store")
		return devserver.NewMemoryStore(), nil
	}

	store, err := devserver.NewRedisStore(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.WithField("addr", cfg.Redis.Addr).Info("✅ Connected to Redis")
	return store, nil
}

// startRetention runs the log retention service in the background when
// LOG_RETENTION is set.
func startRetention(ctx context.Context, cfg *devserver.Config, store devserver.Store) {
	retention := devserver.LoadRetentionConfig()
	if retention.MaxAge <= 0 {
		return
	}

	var archive export.Sink
	if retention.ArchiveDir != "" {
		archive = export.NewFileSink(retention.ArchiveDir)
	}

	games := make([]string, 0, len(cfg.Games))
	for game := range cfg.Games {
		games = append(games, game)
	}
	go devserver.NewRetentionService(store, games, archive, retention).Start(ctx)
}
