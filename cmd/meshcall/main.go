package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meshcall/internal/adapters/device"
	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/adapters/ws"
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	capture, err := device.NewCapture()
	if err != nil {
		log.Error().Err(err).Msg("failed to init capture")
		os.Exit(1)
	}

	channel := ws.NewChannel(ws.Options{
		URL:          cfg.SignalURL,
		SendQueue:    cfg.SendQueue,
		WriteTimeout: cfg.WriteTimeout,
	})
	connector := rtc.NewConnector(rtc.ConfigWithICEServers(cfg.STUNServers))

	media := app.NewMediaSource(capture)
	coordinator := app.NewRoomCoordinator(media, channel, connector)
	supervisor := app.NewSupervisor(media, coordinator, channel)

	participantID := cfg.ParticipantID
	if participantID == "" {
		participantID = uuid.NewString()
	}
	local := domain.Participant{
		ID:          domain.ParticipantID(participantID),
		DisplayName: cfg.DisplayName,
	}

	if err := supervisor.Start(ctx, domain.RoomID(cfg.Room), local); err != nil {
		log.Error().Err(err).Msg("failed to join room")
		os.Exit(1)
	}
	log.Info().Str("room", cfg.Room).Str("participant", participantID).Msg("meshcall started")

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range coordinator.Participants() {
					log.Info().Str("participant", string(p.ID)).
						Str("state", string(p.State)).
						Bool("audio", p.AudioEnabled).
						Bool("video", p.VideoEnabled).Msg("peer")
				}
			}
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	supervisor.Stop()
	log.Info().Msg("Exited gracefully")
}
