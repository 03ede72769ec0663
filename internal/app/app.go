// Package app initializes and runs the bot application. It wires the
// config, storage, vault core, object storage, assistant, and Telegram
// transport together and handles graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/quiksafe/quiksafebot/internal/ai"
	"github.com/quiksafe/quiksafebot/internal/blob"
	"github.com/quiksafe/quiksafebot/internal/bot"
	"github.com/quiksafe/quiksafebot/internal/config"
	"github.com/quiksafe/quiksafebot/internal/logging"
	"github.com/quiksafe/quiksafebot/internal/storage"
	"github.com/quiksafe/quiksafebot/internal/vault"
	"github.com/quiksafe/quiksafebot/internal/vault/session"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *storage.Store
	sessions *session.Manager
	bot      *bot.Bot
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})
	logger := logging.NewSlogLogger(slog.New(handler))

	pepper, err := cfg.Pepper()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	sessions := session.NewManager(cfg.AutoLockThreshold, logger)
	vaultSvc := vault.NewService(store, store, store, sessions, pepper, cfg.FlowTimeout, logger)

	var generator ai.Generator
	if cfg.GeminiAPIKey != "" {
		generator = ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	api, err := bot.NewAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram init error: %w", err)
	}

	b := bot.New(api, vaultSvc, blob.NewS3Store(cfg), generator, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		store:    store,
		sessions: sessions,
		bot:      b,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sessions.Sweep(ctx, app.config.SweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.bot.Run(ctx)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "closing storage", "error", err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
