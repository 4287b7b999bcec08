package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/fxchange/internal/auth"
	"github.com/danmuck/fxchange/internal/observability"
	"github.com/danmuck/fxchange/internal/server"
	"github.com/danmuck/fxchange/internal/store"
)

func main() {
	configPath := flag.String("config", "cmd/fxserver/config.toml", "server config path")
	addr := flag.String("addr", "", "listen address override")
	root := flag.String("root", "", "served directory override")
	flag.Parse()

	logger := observability.InitLogger("fxserver")

	cfg, err := loadRuntimeConfig(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("path", *configPath).Msg("config not found, using defaults")
		cfg, err = defaultRuntimeConfig(), nil
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Service.ListenAddr = *addr
	}
	if *root != "" {
		cfg.Root = *root
	}
	if len(cfg.Credentials) == 0 {
		logger.Warn().Msg("no users configured, using built-in credentials")
		cfg.Credentials = defaultCredentials()
	}

	files, err := store.New(cfg.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("open file store")
	}
	creds, err := auth.NewTable(cfg.Credentials)
	if err != nil {
		logger.Fatal().Err(err).Msg("build credential table")
	}
	svc, err := server.NewService(cfg.Service, creds, files)
	if err != nil {
		logger.Fatal().Err(err).Msg("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Str("root", files.Root()).Int("users", creds.Len()).Msg("fxserver starting")
	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("fxserver stopped")
		os.Exit(1)
	}
	logger.Info().Msg("fxserver shut down")
}
