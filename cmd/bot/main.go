package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"receptionist/internal/bot"
	"receptionist/internal/config"
	"receptionist/internal/dispatch"
	"receptionist/internal/pagerduty"
	"receptionist/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		fmt.Fprintln(os.Stderr, config.Describe())
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Error("open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	var escalator dispatch.Escalator
	if cfg.PagerDuty.Enabled() {
		escalator = pagerduty.New(http.DefaultClient, cfg.PagerDuty.BaseURL, cfg.PagerDuty.Token)
	} else {
		log.Warn("PAGERDUTY_TOKEN not set, escalation actions are disabled")
	}

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, escalator, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "backend", cfg.StorageBackend)

	b.Run(ctx)

	log.Info("bot stopped")
}

func openStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.StorageBackend == config.BackendMemory {
		log.Warn("using in-memory storage, rules are lost on restart")
		return storage.NewMemory(), nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
