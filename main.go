package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Koranoa3/aternos-agent/internal/aternos"
	"github.com/Koranoa3/aternos-agent/internal/discord"
	"github.com/Koranoa3/aternos-agent/internal/mcstatus"
	"github.com/Koranoa3/aternos-agent/internal/metrics"
	"github.com/Koranoa3/aternos-agent/internal/routine"
	"github.com/Koranoa3/aternos-agent/internal/store"
	"github.com/Koranoa3/aternos-agent/internal/utilities"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	// .env ファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file found, using environment variables")
	}

	// 設定ファイルの読み込み
	settingsPath := os.Getenv("SETTINGS_PATH")
	if settingsPath == "" {
		settingsPath = "settings.json"
	}

	settings, err := utilities.LoadSettings(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		os.Exit(1)
	}

	// ロガー初期化
	utilities.InitLogger(settings.LogLevel)
	log.Info().Msg("Application starting")

	// セッションドキュメントの読み込み
	// 壊れている場合は動かさない（読めない状態のまま運用しない）
	sessions, err := store.Load(settings.StorePath)
	if err != nil {
		var corrupt *store.CorruptStateError
		if errors.As(err, &corrupt) {
			log.Fatal().Err(err).Str("path", settings.StorePath).Msg("Session store is corrupt, refusing to start")
		}
		log.Fatal().Err(err).Msg("Failed to load session store")
	}

	// プロバイダークライアントの初期化
	client, err := aternos.NewHTTPClient(settings.AternosBaseURL, settings.SessionDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create provider client")
	}

	// ステータスチェッカー
	checker := mcstatus.NewChecker(settings.StatusAPIURL)

	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	var metricsServer *metrics.Server
	if settings.MetricsAddr != "" {
		metricsServer = metrics.NewServer(settings.MetricsAddr, registry)
		metricsServer.Start()
	}

	// Context と graceful shutdown の準備
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Discord Bot の初期化と起動
	discordToken := os.Getenv("DISCORD_BOT_TOKEN")
	discordGuildID := os.Getenv("DISCORD_GUILD_ID")
	discordAppID := os.Getenv("DISCORD_APP_ID")

	if discordToken == "" || discordAppID == "" {
		log.Fatal().Msg("DISCORD_BOT_TOKEN and DISCORD_APP_ID are required")
	}

	bot, err := discord.NewBot(discordToken, discordGuildID, discordAppID, settings, sessions, client, checker, collector)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord bot")
	}

	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start Discord bot")
	}
	log.Info().Msg("Discord bot started")

	defer func() {
		if err := bot.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop Discord bot")
		}
	}()

	// 定期リフレッシュの起動
	if settings.RefreshInterval > 0 {
		interval := time.Duration(settings.RefreshInterval) * time.Second
		go routine.Run(ctx, sessions, client, interval, bot)
	} else {
		log.Info().Msg("Refresh routine disabled (refresh_interval = 0)")
	}

	// シグナル待ち
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}
}
