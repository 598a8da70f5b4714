package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// KVConfig configures the JetStream key-value bucket holding snapshots
type KVConfig struct {
	URL           string
	Bucket        string
	TTL           time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
	Replicas      int
}

// DefaultKVConfig returns defaults for a local NATS server
func DefaultKVConfig() KVConfig {
	return KVConfig{
		URL:           nats.DefaultURL,
		Bucket:        "FLAMINGO_SNAPSHOTS",
		TTL:           24 * time.Hour,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		Replicas:      1,
	}
}

// KVStore keeps snapshots in a JetStream key-value bucket keyed by session id
type KVStore struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	cfg KVConfig
}

// NewKVStore connects to NATS and creates or updates the bucket
func NewKVStore(ctx context.Context, cfg KVConfig) (*KVStore, error) {
	opts := []nats.Option{
		nats.Name("flamingo-snapshots"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "flamingo session snapshots",
		TTL:         cfg.TTL,
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Dur("ttl", cfg.TTL).Msg("snapshot bucket ready")
	return &KVStore{nc: nc, kv: kv, cfg: cfg}, nil
}

func (s *KVStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	rev, err := s.kv.Put(ctx, snap.SessionID, data)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", snap.SessionID, err)
	}
	log.Debug().Str("session_id", snap.SessionID).Uint64("revision", rev).Msg("saved snapshot")
	return nil
}

func (s *KVStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	entry, err := s.kv.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("get snapshot %s: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(entry.Value(), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", sessionID, err)
	}
	return snap, nil
}

func (s *KVStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.kv.Delete(ctx, sessionID); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Close drains the NATS connection
func (s *KVStore) Close() {
	if err := s.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
