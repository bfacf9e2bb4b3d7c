// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/novacriatura/novacriatura/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE:  runConfigPrint,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for config files",
		Args:  cobra.NoArgs,
		RunE:  runConfigSchema,
	})

	return cmd
}

func runConfigPrint(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, nil, false)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.With("operation", "marshal config").Wrap(err)
	}
	cmd.Print(string(data))

	if err := cfg.Validate(); err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}
	return nil
}

func runConfigSchema(cmd *cobra.Command, _ []string) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return err
	}
	cmd.Println(string(schema))
	return nil
}
