// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/novacriatura/novacriatura/internal/logging"
)

// NewBootstrapCmd creates the bootstrap subcommand.
func NewBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the privileged account if it does not exist",
		Long: `Create the privileged account described by the bootstrap section
of the configuration. Running it again is harmless: an existing account is
left untouched.`,
		Args: cobra.NoArgs,
		RunE: runBootstrap,
	}
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil, true)
	if err != nil {
		return err
	}
	if !cfg.Bootstrap.Enabled {
		return oops.Code("BOOTSTRAP_DISABLED").Errorf("bootstrap is disabled in the configuration")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())
	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	user, err := comps.bootstrap.Ensure(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Privileged account ready: %s (%s)\n", user.Username, user.ID)
	return nil
}
