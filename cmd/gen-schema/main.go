// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

// Command gen-schema writes the configuration JSON Schema, or with --check
// verifies that the committed copy is current.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/novacriatura/novacriatura/internal/config"
)

func main() {
	out := pflag.StringP("output", "o", filepath.Join("schemas", "config.schema.json"), "schema file to write")
	check := pflag.Bool("check", false, "fail if the schema file is missing or stale instead of writing it")
	pflag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintln(os.Stderr, "gen-schema:", err)
		os.Exit(1)
	}
}

func run(outPath string, check bool) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return oops.Wrapf(err, "generate schema")
	}
	schema = append(schema, '\n')

	if check {
		current, err := os.ReadFile(outPath) //nolint:gosec // path comes from the command line
		if err != nil {
			return oops.With("path", outPath).Wrapf(err, "read schema")
		}
		if !bytes.Equal(current, schema) {
			return oops.Code("SCHEMA_STALE").With("path", outPath).Errorf("%s is stale; run gen-schema to regenerate it", outPath)
		}
		fmt.Printf("%s is up to date\n", outPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return oops.Wrapf(err, "create directory")
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return oops.With("path", outPath).Wrapf(err, "write schema")
	}
	fmt.Printf("Generated %s\n", outPath)
	return nil
}
