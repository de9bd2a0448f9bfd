package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dharsanguruparan/ReelDrop/internal/app"
	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	if err := app.RunWorker(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
