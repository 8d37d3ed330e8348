// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command vodpipe runs the video delivery service and its maintenance tasks.
package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vodpipe/internal/config"
	"github.com/ManuGH/vodpipe/internal/version"
)

// envConfigPath selects the config file when --config is not given.
const envConfigPath = config.EnvPrefix + "CONFIG"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vodpipe",
		Short:         "Video upload, encode dispatch and HLS delivery service",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetVersionTemplate(version.String() + "\n")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		strings.TrimSpace(os.Getenv(envConfigPath)),
		"path to YAML configuration file (env "+envConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newDBCmd(),
		newConfigCmd(opts),
		newHealthcheckCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load reads the effective configuration: defaults, file, environment.
func (o *rootOptions) load() (config.AppConfig, *config.Loader, error) {
	loader := config.NewLoader(o.configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return cfg, loader, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(version.String() + "\n"))
			return err
		},
	}
}
