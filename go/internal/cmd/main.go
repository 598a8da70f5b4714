package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcdev12/flamingo/go/internal/config"
	"github.com/mcdev12/flamingo/go/internal/stroke"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (default $FLAMINGO_CONFIG or flamingo.yaml)")
	room := flag.String("room", "", "room id to join")
	name := flag.String("name", "", "display name")
	create := flag.Bool("create", false, "create a new room and join it as host")
	fresh := flag.Bool("fresh", false, "discard the saved snapshot of this session")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	if *room != "" {
		cfg.RoomID = *room
	}
	if *name != "" {
		cfg.PlayerName = *name
	}
	if !*create && cfg.RoomID == "" {
		log.Fatal().Msg("no room to join, pass -room <id> or -create")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg, launchOptions{createRoom: *create, fresh: *fresh})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	log.Info().
		Str("server_url", cfg.ServerURL).
		Str("room_id", cfg.RoomID).
		Str("session_id", services.Session.ID()).
		Msg("starting flamingo")

	if services.Inspector != nil {
		go func() {
			if err := services.Inspector.Run(ctx); err != nil {
				log.Error().Err(err).Msg("inspector failed")
			}
		}()
	}

	terminal := NewTerminal(services.Session, os.Stdout, stroke.Size{
		Width:  float64(cfg.Canvas.Width),
		Height: float64(cfg.Canvas.Height),
	})
	services.Session.Subscribe(terminal.OnStatus)

	runErr := make(chan error, 1)
	go func() { runErr <- services.Session.Run(ctx) }()

	if err := services.Session.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}

	go func() {
		if err := terminal.Run(ctx, os.Stdin); err != nil {
			log.Error().Err(err).Msg("terminal failed")
		}
		stop()
	}()

	if err := <-runErr; err != nil {
		log.Error().Err(err).Msg("session failed")
	}
	log.Info().Msg("flamingo shutdown complete")
}
