package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/adapters/audioout"
	"github.com/dkeye/ProximityVoice/internal/adapters/capture"
	"github.com/dkeye/ProximityVoice/internal/adapters/httpapi"
	"github.com/dkeye/ProximityVoice/internal/adapters/rtc"
	"github.com/dkeye/ProximityVoice/internal/adapters/telemetry"
	"github.com/dkeye/ProximityVoice/internal/adapters/token"
	"github.com/dkeye/ProximityVoice/internal/app"
	"github.com/dkeye/ProximityVoice/internal/config"
	"github.com/dkeye/ProximityVoice/internal/core"
	"github.com/dkeye/ProximityVoice/internal/domain"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.GUID == "" {
		// GUID persistence is the UI layer's job; an ephemeral one still
		// lets the client run standalone.
		cfg.GUID = uuid.NewString()
		log.Warn().Str("guid", cfg.GUID).Msg("no guid configured, using ephemeral")
	}
	selfID := domain.PlayerID(cfg.GUID)

	out, err := audioout.NewContext()
	if err != nil {
		log.Fatal().Err(err).Msg("audio output init")
	}

	mic, err := capture.NewSource()
	if err != nil {
		log.Fatal().Err(err).Msg("capture init")
	}
	defer mic.Close()

	// One ordered channel for every event source: feed, media session,
	// control API.
	events := make(chan core.Event, 64)

	tokens := token.NewClient(cfg.TokenURL)
	provider := rtc.NewProvider(cfg.SessionURL, events)
	feed := telemetry.NewFeed(cfg.TelemetryURL, selfID, cfg.ReconnectDelay, events)

	graph := app.NewPeerAudioGraph(out, app.GraphPolicy{
		Near:     cfg.Near,
		Far:      cfg.Far,
		PanRange: cfg.PanRange,
	})
	coord := app.NewCoordinator(selfID, cfg.Name, cfg.Microphone, tokens, provider, mic)
	voice := app.NewVoiceState(coord, graph)
	ctrl := app.NewController(selfID, app.NearbyPolicy{Far: cfg.Far, FarInclusive: cfg.FarInclusive}, events, feed, coord, graph, voice, out)

	r := httpapi.SetupRouter(cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("control API started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	log.Info().Str("guid", cfg.GUID).Msg("proximity voice client started")
	ctrl.Run(ctx)

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}
