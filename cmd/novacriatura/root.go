// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/novacriatura/novacriatura/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the novacriatura CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novacriatura",
		Short: "Nova Criatura - account and session server",
		Long: `Nova Criatura serves account registration, login and profile
endpoints backed by PostgreSQL, with cookie sessions stored server-side.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/novacriatura/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewBootstrapCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, applying the flags listed in
// flagKeys. Validation is skipped for commands that only inspect it.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string, validate bool) (config.Config, error) {
	opts := config.Options{
		File:     configFile,
		Flags:    cmd.Flags(),
		FlagKeys: flagKeys,
	}
	if validate {
		return config.Load(opts)
	}
	return config.LoadUnvalidated(opts)
}
