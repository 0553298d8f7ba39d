// Package config loads runner configuration with layered precedence:
// defaults, then a matrun.yaml file, then MATRUN_* environment variables,
// then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const envPrefix = "MATRUN_"

// Config is the resolved runner configuration.
type Config struct {
	// Repo is the repository the checkout action copies from.
	Repo string `koanf:"repo"`
	// Workspace is the root directory job workspaces are created under.
	Workspace string `koanf:"workspace"`
	// Toolcache holds provisioned interpreters.
	Toolcache string `koanf:"toolcache"`
	// Packages is the local artifact directory for hash-verified installs.
	Packages    string `koanf:"packages"`
	Shell       string `koanf:"shell"`
	MaxParallel int    `koanf:"max-parallel"`
	History     string `koanf:"history"`
	Verbose     bool   `koanf:"verbose"`
}

func defaults() map[string]interface{} {
	cache, err := os.UserCacheDir()
	if err != nil {
		cache = os.TempDir()
	}
	base := filepath.Join(cache, "matrun")

	return map[string]interface{}{
		"repo":         ".",
		"workspace":    filepath.Join(base, "workspaces"),
		"toolcache":    filepath.Join(base, "toolcache"),
		"packages":     filepath.Join(base, "packages"),
		"shell":        "sh",
		"max-parallel": 4,
		"history":      filepath.Join(base, "history.db"),
		"verbose":      false,
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > matrun.yaml > matrun.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"matrun.yaml", "matrun.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	return ""
}

// Load resolves the configuration. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	err := k.Load(confmap.Provider(defaults(), "."), nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load defaults")
	}

	if cfgFile := findConfigFile(path); cfgFile != "" {
		err = k.Load(file.Provider(cfgFile), yaml.Parser())
		if err != nil {
			return nil, errors.Wrapf(err, "unable to load config file %s", cfgFile)
		}
	}

	err = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load environment")
	}

	if flags != nil {
		err = k.Load(posflag.Provider(flags, ".", k), nil)
		if err != nil {
			return nil, errors.Wrap(err, "unable to load flags")
		}
	}

	cfg := &Config{}
	err = k.Unmarshal("", cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal config")
	}

	return cfg, nil
}
