package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/dbconfig"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/mcdev12/quizduel/go/internal/store/kvstore"
	"github.com/mcdev12/quizduel/go/internal/store/memstore"
	"github.com/mcdev12/quizduel/go/internal/store/pgstore"
)

// setupStore opens the configured session store. The returned func releases
// it.
func setupStore(ctx context.Context, cfg AppConfig, dbCfg dbconfig.Config, clock clockwork.Clock) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case backendPostgres:
		pool, err := setupPool(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		pgCfg := pgstore.DefaultConfig()
		pgCfg.DatabaseURL = dbCfg.DSN()
		pgCfg.NotifyChannel = cfg.NotifyChannel
		pgCfg.FallbackInterval = cfg.FallbackInterval

		st, err := pgstore.New(ctx, pool, pgCfg, clock)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to start postgres store: %w", err)
		}
		go func() {
			if err := st.Run(ctx); err != nil {
				log.Error().Err(err).Msg("postgres listener stopped")
			}
		}()
		return st, func() {
			st.Close()
			pool.Close()
		}, nil

	case backendNATS:
		kvCfg := kvstore.DefaultConfig()
		kvCfg.URL = cfg.JetStream.URL
		kvCfg.MaxReconnects = cfg.JetStream.MaxReconnects
		kvCfg.ReconnectWait = cfg.JetStream.ReconnectWait
		kvCfg.Bucket = cfg.KVBucket
		kvCfg.TTL = cfg.KVTTL
		kvCfg.MaxAttempts = cfg.KVMaxAttempts

		st, err := kvstore.New(ctx, kvCfg, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start nats store: %w", err)
		}
		return st, func() { st.Close() }, nil

	default:
		return memstore.New(clock), func() {}, nil
	}
}
