package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/engine"
	"github.com/githubbar/refwatch/internal/gateway"
	"github.com/githubbar/refwatch/internal/store"
	"github.com/githubbar/refwatch/internal/syncer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("REFWATCH_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceStore, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open device store")
	}
	defer deviceStore.Close()

	channel, err := syncer.Connect(ctx, syncer.ChannelConfig{
		URL:    cfg.NATS.URL,
		Stream: cfg.NATS.Stream,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect messaging channel")
	}
	defer channel.Close()

	outbox := syncer.NewOutbox(channel, clockwork.NewRealClock(), syncer.DefaultOutboxConfig())
	if err := outbox.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start sync outbox")
	}
	defer outbox.Stop()

	eng := engine.New(clockwork.NewRealClock(), deviceStore, outbox, engine.LogFeedback{})
	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start match engine")
	}
	defer eng.Stop()

	scheduleConsumer, err := syncer.RunScheduleConsumer(ctx, channel, "wearable-schedule", eng)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start schedule consumer")
	}
	defer scheduleConsumer.Stop()

	server := gateway.NewServer(eng)
	go server.Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("presentation gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("gateway server failed")
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown incomplete")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
