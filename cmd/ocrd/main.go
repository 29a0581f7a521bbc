package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cometbft/cometbft/abci/server"

	"onchainroulette/internal/app"
	"onchainroulette/internal/config"
	"onchainroulette/internal/logger"
)

func main() {
	var (
		home       = flag.String("home", ".ocr", "app home directory (state will be stored under <home>/app)")
		configPath = flag.String("config", "", "optional TOML config file")
		addr       = flag.String("addr", "", "ABCI listen address (overrides config)")
		transport  = flag.String("transport", "", "ABCI transport (socket|grpc, overrides config)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New(true)
		log.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *debug {
		cfg.Debug = true
	}

	log := logger.New(cfg.Debug)
	log.Info().
		Str("home", *home).
		Str("addr", cfg.ListenAddr).
		Uint32("wheelSize", cfg.WheelSize).
		Str("operator", cfg.Operator).
		Msg("starting ocrd")

	a, err := app.New(*home, cfg.Params(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}

	srv, err := server.NewServer(cfg.ListenAddr, cfg.Transport, a)
	if err != nil {
		log.Fatal().Err(err).Msg("build abci server")
	}

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("start abci server")
	}
	defer func() { _ = srv.Stop() }()

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")
}
