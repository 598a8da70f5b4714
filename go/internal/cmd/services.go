package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/flamingo/go/clients/rooms_client"
	"github.com/mcdev12/flamingo/go/internal/config"
	"github.com/mcdev12/flamingo/go/internal/connection"
	"github.com/mcdev12/flamingo/go/internal/inspect"
	"github.com/mcdev12/flamingo/go/internal/session"
	"github.com/mcdev12/flamingo/go/internal/snapshot"
	"github.com/mcdev12/flamingo/go/internal/stroke"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Rooms     *rooms_client.RoomsClient
	Store     snapshot.Store
	Manager   *connection.Manager
	Session   *session.Session
	Inspector *inspect.Server

	closeStore func()
}

type launchOptions struct {
	createRoom bool
	fresh      bool
}

func setupServices(ctx context.Context, cfg *config.Config, launch launchOptions) (*Services, error) {
	// Wire up dependency chain
	// Rooms API → snapshot store → connection manager → session → inspector

	rooms := rooms_client.NewRoomsClient(cfg.ServerURL)
	rooms.SetTimeout(10 * time.Second)

	hostLaunch := false
	if launch.createRoom {
		room, err := rooms.CreateRoom(ctx)
		if err != nil {
			return nil, err
		}
		cfg.RoomID = room.ID
		hostLaunch = true
	} else if cfg.RoomID != "" {
		ok, err := rooms.RoomExists(ctx, cfg.RoomID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("room %s does not exist", cfg.RoomID)
		}
	}

	store, closeStore, err := setupSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if launch.fresh && cfg.SessionID != "" {
		if err := store.Delete(ctx, cfg.SessionID); err != nil {
			log.Warn().Err(err).Str("session_id", cfg.SessionID).Msg("failed to delete snapshot")
		}
	}

	connCfg := connection.DefaultConnectionConfig()
	connCfg.WriteTimeout = cfg.Websocket.WriteTimeout
	connCfg.ReadTimeout = cfg.Websocket.ReadTimeout
	connCfg.PingInterval = cfg.Websocket.PingInterval
	connCfg.HandshakeTimeout = cfg.Websocket.HandshakeTimeout
	connCfg.MaxMessageSize = int64(cfg.Websocket.MaxMessageSize)
	manager := connection.NewManager(connection.NewWebsocketDialer(connCfg), connection.WithConfig(connCfg))

	sess, err := session.New(ctx, manager, session.Options{
		SessionID:  cfg.SessionID,
		RoomID:     cfg.RoomID,
		PlayerName: cfg.PlayerName,
		HostLaunch: hostLaunch,
		Endpoint:   cfg.WebsocketURL,
		CanvasSize: stroke.Size{
			Width:  float64(cfg.Canvas.Width),
			Height: float64(cfg.Canvas.Height),
		},
		Style: stroke.Style{
			Color:     cfg.Canvas.StrokeColor,
			LineWidth: cfg.Canvas.LineWidth,
		},
		Store:           store,
		MinSaveInterval: time.Second,
		Strict:          cfg.Strict,
	})
	if err != nil {
		closeStore()
		return nil, err
	}

	services := &Services{
		Rooms:      rooms,
		Store:      store,
		Manager:    manager,
		Session:    sess,
		closeStore: closeStore,
	}
	if cfg.Inspect.Addr != "" {
		services.Inspector = inspect.NewServer(cfg.Inspect.Addr)
		services.Inspector.Publish(sess.Status())
		sess.Subscribe(services.Inspector.Publish)
	}

	log.Info().
		Str("session_id", sess.ID()).
		Str("room_id", cfg.RoomID).
		Str("snapshot_backend", cfg.Snapshot.Backend).
		Bool("host_launch", hostLaunch).
		Msg("services ready")
	return services, nil
}

// Close stops the session and releases the snapshot store
func (s *Services) Close() {
	if err := s.Session.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close session")
	}
	s.closeStore()
}
