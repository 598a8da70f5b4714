package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/flamingo/go/internal/config"
	"github.com/mcdev12/flamingo/go/internal/snapshot"
	"github.com/rs/zerolog/log"
)

// setupSnapshotStore opens the configured snapshot backend. The returned func releases it.
func setupSnapshotStore(ctx context.Context, cfg *config.Config) (snapshot.Store, func(), error) {
	switch cfg.Snapshot.Backend {
	case config.BackendPostgres:
		store, err := snapshot.NewPostgresStore(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres snapshot store: %w", err)
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("connected to snapshot database")
		return store, store.Close, nil

	case config.BackendNATS:
		kvCfg := snapshot.DefaultKVConfig()
		kvCfg.URL = cfg.Snapshot.NATSURL
		kvCfg.Bucket = cfg.Snapshot.Bucket
		kvCfg.TTL = cfg.Snapshot.TTL
		store, err := snapshot.NewKVStore(ctx, kvCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open nats snapshot store: %w", err)
		}
		return store, store.Close, nil

	case config.BackendFile:
		store, err := snapshot.NewFileStore(cfg.Snapshot.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file snapshot store: %w", err)
		}
		return store, func() {}, nil

	default:
		return snapshot.NopStore{}, func() {}, nil
	}
}
