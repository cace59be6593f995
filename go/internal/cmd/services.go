package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/clients/generation_client"
	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/content/bank"
	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/gateway"
	"github.com/mcdev12/quizduel/go/internal/results"
	"github.com/mcdev12/quizduel/go/internal/sessions"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type Services struct {
	Sessions  *sessions.Service
	Gateway   *gateway.WebSocketHandler
	Manager   *gateway.ConnectionManager
	Results   *results.App // nil when the archive is disabled
	Tracker   *events.Tracker
	Publisher events.Publisher
	Consumer  *events.Consumer
}

func (s *Services) Close() {
	s.Manager.CloseAll()
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	if err := s.Publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close publisher")
	}
}

func setupRegistry() (*content.Registry, error) {
	registry := content.NewRegistry()
	if err := registry.Register("bank", bank.Factory); err != nil {
		return nil, err
	}
	if err := registry.Register("generation", generation_client.Factory); err != nil {
		return nil, err
	}
	return registry, nil
}

func setupServices(ctx context.Context, cfg AppConfig, fileCfg *Config, st store.Store, resultsDB *sql.DB, clock clockwork.Clock) (*Services, error) {
	// Content: registry → pipeline → seeder
	registry, err := setupRegistry()
	if err != nil {
		return nil, err
	}
	pipeline, err := registry.Open(fileCfg.Content.Source, fileCfg.sourceSettings())
	if err != nil {
		return nil, err
	}
	log.Info().Str("source", fileCfg.Content.Source).Strs("available", registry.Keys()).Msg("content source ready")
	seeder := content.NewSeeder(st, pipeline, cfg.Seeder, clock)

	// Sessions
	sessionsApp := sessions.NewApp(st, clock, cfg.Windows)
	sessionsService := sessions.NewService(sessionsApp)

	// Results archive
	var (
		resultsApp *results.App
		archiver   controller.Archiver = results.Discard{}
	)
	if resultsDB != nil {
		resultsApp = results.NewApp(resultsDB)
		if err := resultsApp.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate results: %w", err)
		}
		archiver = resultsApp
	}

	// View events
	var (
		publisher events.Publisher = events.LogPublisher{}
		consumer  *events.Consumer
	)
	tracker := events.NewTracker()
	if cfg.EventsEnabled {
		js, err := events.NewJetStreamPublisher(ctx, cfg.JetStream)
		if err != nil {
			return nil, fmt.Errorf("failed to start event publisher: %w", err)
		}
		publisher = js

		consumer, err = events.NewConsumer(ctx, cfg.JetStream, cfg.Consumer, tracker)
		if err != nil {
			js.Close()
			return nil, fmt.Errorf("failed to start event consumer: %w", err)
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	// Gateway
	manager := gateway.NewConnectionManager(cfg.Connection, gateway.Deps{
		Store:        st,
		Clock:        clock,
		Windows:      cfg.Windows,
		Seeder:       seeder,
		Archiver:     archiver,
		Publisher:    publisher,
		TickInterval: cfg.TickInterval,
	})

	return &Services{
		Sessions:  sessionsService,
		Gateway:   gateway.NewWebSocketHandler(manager),
		Manager:   manager,
		Results:   resultsApp,
		Tracker:   tracker,
		Publisher: publisher,
		Consumer:  consumer,
	}, nil
}
