// root.go: root command, shared flags and host setup
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/agilira/plughost"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	hostVersion string
}

// host bundles what every subcommand needs.
type host struct {
	config  plughost.HostConfig
	logger  zerolog.Logger
	manager *plughost.Manager
}

func newRootCommand(version, commit, date string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Load, inspect and run plughost plugin modules",
		Long: `plughost discovers plugin modules on disk, validates them against the
host version and runs them in isolated child processes.

Modules are executables built with plughost.Serve and described by a
plugin.yaml or plugin.json manifest.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "host configuration file (JSON or YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: console or json")
	pf.StringVar(&flags.hostVersion, "host-version", "", "host version plugins are checked against")

	rootCmd.AddCommand(
		newDiscoverCommand(flags),
		newValidateCommand(flags),
		newExecCommand(flags),
		newRunCommand(flags),
	)
	return rootCmd
}

// loadConfig reads the config file when given and applies flag overrides.
func (f *globalFlags) loadConfig() (plughost.HostConfig, error) {
	cfg := plughost.DefaultHostConfig()
	if f.configPath != "" {
		loaded, err := plughost.LoadHostConfig(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		if v := os.Getenv(plughost.EnvHostVersion); v != "" {
			cfg.HostVersion = v
		}
		if v := os.Getenv(plughost.EnvPluginDir); v != "" {
			cfg.PluginDir = v
		}
		if v := os.Getenv(plughost.EnvLogLevel); v != "" {
			cfg.Logging.Level = v
		}
	}

	f.applyOverrides(&cfg)
	return cfg, cfg.Validate()
}

// applyOverrides gives command line flags precedence over cfg.
func (f *globalFlags) applyOverrides(cfg *plughost.HostConfig) {
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	if f.hostVersion != "" {
		cfg.HostVersion = f.hostVersion
	}
}

// newHost builds the logger and manager for a subcommand.
func (f *globalFlags) newHost() (*host, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newZerolog(os.Stderr, cfg.Logging)
	adapter := plughost.NewZerologAdapter(logger)

	subprocess := cfg.SubprocessOptions()
	subprocess.Logger = adapter

	manager := plughost.NewManager(plughost.ManagerConfig{
		HostVersion: cfg.HostVersion,
		Logger:      adapter,
		Boundaries:  plughost.NewSubprocessBoundaryFactory(subprocess),
		Discovery:   cfg.Discovery,
	})
	return &host{config: cfg, logger: logger, manager: manager}, nil
}

func newZerolog(w io.Writer, cfg plughost.LoggingConfig) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	return zerolog.New(w).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// configApplier forwards reloaded configuration to the manager and the
// global log level. Flags given at startup keep precedence over the file.
type configApplier struct {
	manager *plughost.Manager
	flags   *globalFlags
}

func (a configApplier) ApplyConfig(cfg plughost.HostConfig) error {
	if a.flags != nil {
		a.flags.applyOverrides(&cfg)
	}
	if err := a.manager.ApplyConfig(cfg); err != nil {
		return err
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))
	return nil
}
