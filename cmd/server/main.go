package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "peerline/go-backend/internal/adapters/http"
	"peerline/go-backend/internal/adapters/ws"
	"peerline/go-backend/internal/app"
	"peerline/go-backend/internal/auth"
	"peerline/go-backend/internal/config"
	"peerline/go-backend/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret is required")
	}

	messages, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open message store")
	}
	defer messages.Close()

	registry := app.NewRegistry(cfg.ReconnectPolicy)
	calls := app.NewCallManager(registry, cfg.RingTimeout)
	rt := &app.Router{
		Registry: registry,
		Calls:    calls,
		Store:    messages,
	}

	verifier := auth.NewVerifier(cfg.Secret)
	ctl := &ws.Controller{
		Router:     rt,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Limiter:    ws.NewHandshakeLimiter(cfg.HandshakeRate, cfg.HandshakeBurst),
	}

	r := router.SetupRouter(ctx, cfg, verifier, ctl, messages)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Peerline relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
