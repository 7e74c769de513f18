package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rickgao/perp-stream/internal/account"
	"github.com/rickgao/perp-stream/internal/api"
	"github.com/rickgao/perp-stream/internal/book"
	"github.com/rickgao/perp-stream/internal/config"
	"github.com/rickgao/perp-stream/internal/connection"
	"github.com/rickgao/perp-stream/internal/feed"
	"github.com/rickgao/perp-stream/internal/meta"
	"github.com/rickgao/perp-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Indexer REST client (price + historical fills lookups)
	indexer := api.NewClient(
		cfg.API.IndexerURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
	)

	// Views
	books := book.NewView(cfg.Symbols, logger.With("component", "book"))
	metadata := meta.NewView(logger.With("component", "meta"))
	acct := account.NewView(account.Config{
		Address:         cfg.Account.Address,
		Symbol:          cfg.Account.Symbol,
		CollateralAsset: cfg.Account.CollateralAsset,
	}, logger.With("component", "account"))
	acct.AttachPriceSource(indexer)
	acct.AttachFillsSource(indexer)

	// Connection manager with one subscription per channel
	subs := []connection.Subscription{
		{Channel: connection.ChannelMarkets},
		{Channel: connection.ChannelSubaccounts, ID: cfg.Account.Address},
	}
	for _, symbol := range cfg.Symbols {
		subs = append(subs, connection.Subscription{
			Channel: connection.ChannelOrderbook,
			ID:      symbol,
		})
	}

	mgr := connection.NewManager(connection.ManagerConfig{
		URL:           cfg.API.WSURL,
		Subscriptions: subs,
		PingInterval:  cfg.Connection.PingInterval,
		RotateAfter:   cfg.Connection.RotateAfter,
		MaxAttempts:   cfg.Connection.MaxAttempts,
		WriteTimeout:  cfg.Connection.WriteTimeout,
		BufferSize:    cfg.Connection.BufferSize,
		MessageBuffer: cfg.Connection.MessageBuffer,
	}, logger.With("component", "connection"))

	// Every close resets derived view state before a reconnect; the next
	// snapshots rebuild it.
	mgr.RegisterTeardown(books.Reset)
	mgr.RegisterTeardown(acct.Reset)
	mgr.RegisterTeardown(metadata.Reset)

	dispatcher := feed.NewDispatcher(mgr.Messages(), feed.Views{
		Books:    books,
		Account:  acct,
		Metadata: metadata,
	}, logger.With("component", "dispatcher"))

	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("streamer running",
		"symbols", cfg.Symbols,
		"account", cfg.Account.Address,
	)

	<-ctx.Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("dispatcher stop", "error", err)
	}

	stats := dispatcher.Stats()
	logger.Info("streamer stopped",
		"received", stats.Received,
		"routed", stats.Routed,
		"errors", stats.HandleError,
		"version_gaps", stats.VersionGaps,
	)
}

// newLogger builds the slog logger, optionally teeing to a rotated file.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
