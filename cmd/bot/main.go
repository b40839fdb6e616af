package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/bot"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)
	logStartup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}

	if err := b.Start(ctx); err != nil {
		slog.Error("Failed to start bot", "error", err)
		_ = b.Stop()
		os.Exit(1)
	}
	slog.Info("Lineup bot running, commands answer once lineups are loaded")

	<-ctx.Done()
	stop()
	slog.Info("Shutting down")

	if err := b.Stop(); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Lineup bot stopped")
}

// logStartup records the effective settings, never the token
func logStartup(cfg *config.Config) {
	scope := "global"
	if cfg.GuildID != "" {
		scope = "guild " + cfg.GuildID
	}
	announce := "off"
	if cfg.ResetChannelID != "" {
		announce = cfg.ResetChannelID
	}
	slog.Info("Starting lineup bot",
		"database", cfg.DatabasePath,
		"cacheTier", cfg.RedisURL != "",
		"cachePrefix", cfg.CacheKeyPrefix,
		"resetAt", cfg.ResetTime,
		"resetZone", cfg.ResetTimezone,
		"resetNotice", announce,
		"commands", scope,
	)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
