package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/autobet/config"
	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	feedPath := flag.String("feed", "", "JSON lines event feed, - for stdin (overrides config)")
	dryRun := flag.Bool("dry-run", false, "log bets instead of calling the actuation endpoint")
	fresh := flag.Bool("fresh", false, "ignore the last persisted snapshot")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print bets and settlements as tables (default: compact 1-line)")
	validate := flag.Bool("validate", false, "validate config and strategies, then exit")
	status := flag.Bool("status", false, "print the last persisted snapshot and exit")
	report := flag.Bool("report", false, "print the settlement journal and exit")
	since := flag.Duration("since", 24*time.Hour, "report window")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *feedPath != "" {
		cfg.Engine.Feed = *feedPath
	}
	if *dryRun {
		cfg.Actuation.Endpoint = ""
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *validate {
		printValidation(cfg)
		return
	}

	console := notify.NewConsole(*table)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *status:
		runStatus(ctx, store, console)
		return
	case *report:
		runReport(ctx, store, console, *since)
		return
	}

	slog.Info("autobet starting",
		"session", uuid.NewString(),
		"config", *configPath,
		"feed", cfg.Engine.Feed,
		"strategies", len(cfg.Strategies),
		"tables", len(cfg.Tables),
		"dry_run", cfg.Actuation.Endpoint == "",
		"snapshot_every", cfg.SnapshotInterval(),
	)

	if err := runEngine(ctx, cfg, store, console, *fresh); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("autobet stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
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

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
