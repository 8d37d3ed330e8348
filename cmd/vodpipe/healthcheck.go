// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	mode    string
	url     string
	timeout time.Duration
}

// newHealthcheckCmd probes a running instance, for container HEALTHCHECKs.
func newHealthcheckCmd(root *rootOptions) *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe /healthz or /readyz of a running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := strings.TrimRight(opts.url, "/")
			if base == "" {
				cfg, _, err := root.load()
				if err != nil {
					return err
				}
				base = localURL(cfg.Server.ListenAddr)
			}

			path := "/healthz"
			switch opts.mode {
			case "ready":
				path = "/readyz"
			case "live":
			default:
				return fmt.Errorf("invalid mode %q, use ready or live", opts.mode)
			}

			client := http.Client{Timeout: opts.timeout}
			resp, err := client.Get(base + path)
			if err != nil {
				return fmt.Errorf("healthcheck failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("healthcheck failed: %s", resp.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "healthy (%s)\n", opts.mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "ready", "probe mode: ready or live")
	cmd.Flags().StringVar(&opts.url, "url", "", "base URL of the instance (default derived from server.listen_addr)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}

// localURL turns a listen address into a loopback base URL.
func localURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
