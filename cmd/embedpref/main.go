package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/embedpref/internal/api"
	"github.com/nidhogg/embedpref/internal/client"
	"github.com/nidhogg/embedpref/internal/config"
	"github.com/nidhogg/embedpref/internal/embedding"
	"github.com/nidhogg/embedpref/internal/notify"
	"github.com/nidhogg/embedpref/internal/preference"
	"github.com/nidhogg/embedpref/internal/settings"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer func() { logger.Sync() }()

	logger.Info("Starting embedpref...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/embedpref.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	if leveled, lErr := cfg.NewLogger(); lErr != nil {
		logger.Warn("invalid log level, keeping default", zap.String("level", cfg.Server.LogLevel), zap.Error(lErr))
	} else {
		logger.Sync()
		logger = leveled
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets cipher is needed by every persistent store.
	var cipher *settings.Cipher
	if cfg.Database.Postgres.DSN != "" || cfg.Database.Redis.URL != "" {
		cipher, err = settings.CipherFromEnv()
		if err != nil {
			logger.Fatal("secret encryption unavailable", zap.Error(err))
		}
	}

	// Settings store: Postgres when configured, memory otherwise
	var store settings.Store = settings.NewMemoryStore(nil)
	var pgStore *settings.PostgresStore
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := settings.NewPostgresStore(ctx, cfg.Database.Postgres.DSN, cipher, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, settings kept in memory", zap.Error(pgErr))
		} else {
			migrations := cfg.Database.Postgres.Migrations
			if migrations == "" {
				migrations = "migrations"
			}
			if mErr := ps.Migrate(ctx, migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			store = ps
		}
	}

	var cached *settings.CachedStore
	if cfg.Database.Redis.URL != "" {
		cs, cErr := settings.NewCachedStore(store, cfg.Database.Redis.URL, cipher, cfg.CacheTTL(), logger)
		if cErr != nil {
			logger.Warn("Redis unavailable, running without settings cache", zap.Error(cErr))
		} else {
			cached = cs
			store = cs
		}
	}

	// Audit channels
	auditors := notify.NewAuditors(logger)
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.WebhookURL != "" {
		auditors.Add("slack", notify.NewSlack(cfg.Notify.Slack.WebhookURL))
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		d, dErr := notify.NewDiscord(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID)
		if dErr != nil {
			logger.Warn("discord audit unavailable", zap.Error(dErr))
		} else {
			auditors.Add("discord", d)
		}
	}
	var auditor settings.Auditor
	if auditors.Len() > 0 {
		auditor = auditors
	}

	service := settings.NewService(store, auditor, logger)

	// Embedder follows the stored preference
	registry := embedding.NewRegistry(store, logger)
	if err := registry.Reload(ctx); err != nil {
		logger.Warn("initial embedder load failed", zap.Error(err))
	}
	if cached != nil {
		go registry.Watch(ctx, cached.Changes(ctx))
	} else {
		service.OnUpdate(func(ctx context.Context, _ []string) {
			if err := registry.Reload(ctx); err != nil {
				logger.Warn("embedder reload failed", zap.Error(err))
			}
		})
	}

	// The settings page talks to a remote backend when one is configured.
	var pageSettings preference.Settings = service
	if cfg.Settings.RemoteURL != "" {
		pageSettings = client.New(cfg.Settings.RemoteURL)
		logger.Info("Settings page uses remote backend", zap.String("url", cfg.Settings.RemoteURL))
	}
	sessions := preference.NewSessions(pageSettings, logger)
	idle := cfg.SessionIdleTimeout()
	go sessions.Run(ctx, idle/2, idle)

	handler := api.NewHandler(service, sessions, registry, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.ListenPort())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("embedpref listening", zap.String("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down embedpref...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	cancel()
	sessions.Close()
	if cached != nil {
		cached.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
}
