// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/novacriatura/novacriatura/internal/xdg"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: NOVACRIATURA_SESSION__SECRET sets session.secret.
const EnvPrefix = "NOVACRIATURA_"

// legacyEnv maps unprefixed variables understood for compatibility with
// existing deployments.
var legacyEnv = map[string]string{
	"DATABASE_URL":   "database.url",
	"SESSION_SECRET": "session.secret",
	"REDIS_URL":      "redis.url",
	"NODE_ENV":       "env",
	"APP_ENV":        "env",
}

// legacyOrder fixes precedence among legacy variables; later entries win.
var legacyOrder = []string{"NODE_ENV", "APP_ENV", "DATABASE_URL", "REDIS_URL", "SESSION_SECRET"}

// Options controls Load.
type Options struct {
	// File is an explicit config path. When empty, the XDG default is used
	// if it exists.
	File string
	// Flags holds command-line flags; only changed flags apply.
	Flags *pflag.FlagSet
	// FlagKeys maps flag names to config keys. Flags not listed are ignored.
	FlagKeys map[string]string
}

// Load builds the configuration and validates it.
func Load(opts Options) (Config, error) {
	cfg, err := load(opts)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUnvalidated builds the configuration without validating it, for
// commands that only inspect it.
func LoadUnvalidated(opts Options) (Config, error) {
	return load(opts)
}

func load(opts Options) (Config, error) {
	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := loadFile(k, path, explicit); err != nil {
		return Config{}, err
	}

	if err := loadEnv(k); err != nil {
		return Config{}, err
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code(CodeInvalid).With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code(CodeInvalid).With("operation", "decode config").Wrap(err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return oops.Code(CodeInvalid).With("file", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code(CodeInvalid).With("file", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code(CodeInvalid).With("file", path).Wrap(err)
	}
	return nil
}

func loadEnv(k *koanf.Koanf) error {
	for _, name := range legacyOrder {
		if value := os.Getenv(name); value != "" {
			if err := k.Set(legacyEnv[name], value); err != nil {
				return oops.Code(CodeInvalid).With("env", name).Wrap(err)
			}
		}
	}

	provider := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code(CodeInvalid).With("source", "env").Wrap(err)
	}
	return nil
}

// listKeys are the keys whose environment values are comma-separated lists.
var listKeys = map[string]bool{
	"server.fallback_ports":    true,
	"server.allowed_origins":   true,
	"session.previous_secrets": true,
}

func splitList(value string) []string {
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
