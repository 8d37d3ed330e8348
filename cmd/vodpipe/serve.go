// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vodpipe/internal/config"
	"github.com/ManuGH/vodpipe/internal/daemon"
	"github.com/ManuGH/vodpipe/internal/log"
	"github.com/ManuGH/vodpipe/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	log.Configure(log.Config{Level: "info", Service: daemon.ServiceName, Version: version.Version})
	logger := log.WithComponent("daemon")

	cfg, loader, err := opts.load()
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", opts.configPath).
			Msg("failed to load configuration")
		return err
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: daemon.ServiceName, Version: cfg.Version})
	logger = log.WithComponent("daemon")
	if loader.Path() != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("path", loader.Path()).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "environment").
			Msg("no config file given, using defaults and environment")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := daemon.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wire service: %w", err)
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{Logger: logger, APIHandler: rt.Handler})
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return err
	}
	rt.RegisterShutdownHooks(mgr)

	holder := config.NewConfigHolder(cfg, loader)
	if err := daemon.NewApp(logger, mgr, holder).Run(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.exit").Msg("daemon stopped with error")
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.exit").Msg("daemon stopped")
	return nil
}
