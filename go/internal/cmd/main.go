package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/dbconfig"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadAppConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	fileCfg, err := loadConfig(cfg.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ConfigPath).Msg("failed to load config")
	}

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	st, closeStore, err := setupStore(ctx, cfg, dbCfg, clock)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open session store")
	}
	defer closeStore()

	var resultsDB *sql.DB
	if cfg.ResultsEnabled {
		if resultsDB, err = setupDatabase(ctx, dbCfg); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to results database")
		}
		defer resultsDB.Close()
	}

	services, err := setupServices(ctx, cfg, fileCfg, st, resultsDB, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Close()

	server := setupServer(cfg.Port, services)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreBackend).
			Bool("results", cfg.ResultsEnabled).
			Bool("events", cfg.EventsEnabled).
			Msg("starting quizduel server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
