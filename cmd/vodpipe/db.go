// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/vodpipe/internal/daemon"
	"github.com/ManuGH/vodpipe/internal/persistence/sqlstore"
)

// errCorrupt is returned when an integrity check reports problems.
var errCorrupt = errors.New("database integrity check failed")

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			db, err := daemon.OpenDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := sqlstore.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", db.Driver(), v)
			return nil
		},
	}
}

func newDBCmd() *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	var mode string
	verify := &cobra.Command{
		Use:   "verify PATH",
		Short: "Check a SQLite database file for corruption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			if mode != "quick" && mode != "full" {
				return fmt.Errorf("invalid mode %q, use quick or full", mode)
			}

			path := args[0]
			fmt.Fprintf(cmd.ErrOrStderr(), "verifying %s (mode: %s)\n", path, mode)
			issues, err := sqlstore.VerifyIntegrity(path, mode)
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
				}
				return errCorrupt
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
	verify.Flags().StringVar(&mode, "mode", "quick", "verification mode: quick or full")

	db.AddCommand(verify)
	return db
}
