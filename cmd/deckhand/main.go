package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deckhand-sh/deckhand/internal/app"
	"github.com/deckhand-sh/deckhand/internal/config"
	"github.com/deckhand-sh/deckhand/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New()
		bootLogger.Fatal().Err(err).Msg("configuration error")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Msg("deckhand starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, logger, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("deckhand exited with error")
	}

	logger.Info().Msg("deckhand stopped")
}
