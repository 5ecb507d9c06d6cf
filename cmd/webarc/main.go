package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webarctools/webarc/internal/app"
	"github.com/webarctools/webarc/internal/server"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := app.Defaults()
	var configPath string
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&configPath, "config", "", "Path to optional YAML config file")
	flag.Int64Var(&cfg.MaxUploadBytes, "max.uploadBytes", cfg.MaxUploadBytes, "Maximum accepted upload size in bytes")
	flag.DurationVar(&cfg.ConvertTimeout, "convert.timeout", cfg.ConvertTimeout, "Wall-clock budget for a single conversion")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.Parse()

	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal().Err(err).Msg("invalid environment override")
	}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", app.Version).
		Int64("maxUploadBytes", cfg.MaxUploadBytes).
		Dur("convertTimeout", cfg.ConvertTimeout).
		Msg("starting webarc")

	if err := server.New(cfg, log.Logger).ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
