package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/kami-client/internal/stubserver"
	"github.com/tensorplex-labs/kami-client/pkg/config"
	"github.com/tensorplex-labs/kami-client/pkg/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting kami stub server...")

	ctx := context.Background()

	cfg, err := config.Load[config.StubServerEnvConfig](ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading server environment")
	}
	chainCfg, err := config.Load[config.ChainEnvConfig](ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading chain environment")
	}

	state, err := stubserver.NewState(stubserver.Options{Netuid: chainCfg.Netuid})
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing stub state")
	}

	server := stubserver.NewServer(cfg, state)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Stub server stopped unexpectedly")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Stub server is running. Press Ctrl+C to shutdown...")

	<-sigChan
	log.Info().Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down stub server")
	}

	log.Info().Msg("Stub server shutdown complete")
}
