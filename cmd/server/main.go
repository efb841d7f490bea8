package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/server"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.Logging)
	log := logging.Component("main")

	norm, err := timezone.New(cfg.Timezone.Name)
	if err != nil {
		return err
	}
	clk := clock.Real{}

	store, err := server.OpenStore(ctx, cfg, clk, norm)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	app, err := server.NewApp(cfg, store, clk, norm)
	if err != nil {
		return err
	}

	sup := server.NewSupervisor("ntk-tracker", server.DefaultSupervisorConfig())
	for _, svc := range app.Services() {
		sup.Add(svc)
	}

	log.Info().
		Str("port", cfg.Server.Port).
		Str("timezone", norm.Name()).
		Dur("scrape_interval", cfg.Scrape.Interval).
		Msg("ntk-tracker starting")

	err = sup.Serve(ctx)
	log.Info().Msg("shutdown complete")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
