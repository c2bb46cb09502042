package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/githubbar/refwatch/internal/recordstore"
	"github.com/githubbar/refwatch/internal/relay"
	"github.com/githubbar/refwatch/internal/syncer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("COMPANION_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect record store")
	}
	defer database.Close()

	records := recordstore.NewRepository(database)
	if err := records.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init record store schema")
	}

	channel, err := syncer.Connect(ctx, syncer.ChannelConfig{
		URL:    cfg.NATS.URL,
		Stream: cfg.NATS.Stream,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect messaging channel")
	}
	defer channel.Close()

	rly := relay.New(channel, records)
	go func() {
		if err := rly.Run(ctx); err != nil {
			log.Error().Err(err).Msg("relay stopped")
			cancel()
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newAdminHandler(rly, records),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("companion API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("companion server failed")
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
		log.Warn().Err(err).Msg("companion shutdown incomplete")
	}
}

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	dbCfg := databaseConfig()
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dbCfg.User, dbCfg.Password, dbCfg.Host, dbCfg.Port, dbCfg.Database, dbCfg.SSLMode)

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to record store")
	return database, nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
