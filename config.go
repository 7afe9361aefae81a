// config.go: host configuration loading, defaults and validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvHostVersion = "PLUGHOST_HOST_VERSION"
	EnvPluginDir   = "PLUGHOST_PLUGIN_DIR"
	EnvLogLevel    = "PLUGHOST_LOG_LEVEL"
)

// Duration is a time.Duration that reads "5s"-style strings from JSON and
// YAML.
type Duration time.Duration

// Std returns the value as time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	case int:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// BoundaryConfig holds the subprocess boundary timeouts.
type BoundaryConfig struct {
	StartTimeout Duration `json:"start_timeout" yaml:"start_timeout"`
	StopTimeout  Duration `json:"stop_timeout" yaml:"stop_timeout"`
	CallTimeout  Duration `json:"call_timeout" yaml:"call_timeout"`
}

// LoggingConfig selects the host log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// HostConfig is the on-disk configuration of a plugin host.
//
// Example (YAML):
//
//	host_version: 1.4.0
//	plugin_dir: ./plugins
//	discovery:
//	  max_depth: 2
//	  workers: 8
//	boundary:
//	  start_timeout: 10s
//	logging:
//	  level: debug
type HostConfig struct {
	HostVersion string           `json:"host_version" yaml:"host_version"`
	PluginDir   string           `json:"plugin_dir" yaml:"plugin_dir"`
	Discovery   DiscoveryOptions `json:"discovery" yaml:"discovery"`
	Boundary    BoundaryConfig   `json:"boundary" yaml:"boundary"`
	Logging     LoggingConfig    `json:"logging" yaml:"logging"`
}

// DefaultHostConfig returns a complete configuration with defaults.
func DefaultHostConfig() HostConfig {
	sub := DefaultSubprocessOptions()
	return HostConfig{
		HostVersion: DefaultHostVersion,
		PluginDir:   "plugins",
		Discovery:   DefaultDiscoveryOptions(),
		Boundary: BoundaryConfig{
			StartTimeout: Duration(sub.StartTimeout),
			StopTimeout:  Duration(sub.StopTimeout),
			CallTimeout:  Duration(sub.CallTimeout),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// applyDefaults fills zero fields from DefaultHostConfig.
func (c *HostConfig) applyDefaults() {
	def := DefaultHostConfig()
	if c.HostVersion == "" {
		c.HostVersion = def.HostVersion
	}
	if c.PluginDir == "" {
		c.PluginDir = def.PluginDir
	}
	c.Discovery = c.Discovery.withDefaults()
	if c.Boundary.StartTimeout <= 0 {
		c.Boundary.StartTimeout = def.Boundary.StartTimeout
	}
	if c.Boundary.StopTimeout <= 0 {
		c.Boundary.StopTimeout = def.Boundary.StopTimeout
	}
	if c.Boundary.CallTimeout <= 0 {
		c.Boundary.CallTimeout = def.Boundary.CallTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// applyEnv overrides fields from the environment.
func (c *HostConfig) applyEnv(getenv func(string) string) {
	if v := getenv(EnvHostVersion); v != "" {
		c.HostVersion = v
	}
	if v := getenv(EnvPluginDir); v != "" {
		c.PluginDir = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration.
func (c HostConfig) Validate() error {
	if !ValidVersion(c.HostVersion) {
		return NewConfigValidationError(fmt.Sprintf("host_version %q is not a semantic version", c.HostVersion))
	}
	for _, pattern := range c.Discovery.Patterns {
		if _, err := filepath.Match(pattern, "plugin.yaml"); err != nil {
			return NewConfigValidationError(fmt.Sprintf("invalid discovery pattern %q", pattern))
		}
	}
	if c.Discovery.MaxDepth < 0 {
		return NewConfigValidationError("discovery.max_depth must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return NewConfigValidationError(fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return NewConfigValidationError(fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}
	return nil
}

// SubprocessOptions projects the boundary settings.
func (c HostConfig) SubprocessOptions() SubprocessOptions {
	opts := DefaultSubprocessOptions()
	opts.StartTimeout = c.Boundary.StartTimeout.Std()
	opts.StopTimeout = c.Boundary.StopTimeout.Std()
	opts.CallTimeout = c.Boundary.CallTimeout.Std()
	return opts
}

// LoadHostConfig reads path (JSON or YAML, chosen by extension), expands
// ${VAR} references, applies environment overrides and defaults, and
// validates the result.
func LoadHostConfig(path string) (HostConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator supplied config path
	if err != nil {
		return HostConfig{}, NewConfigNotFoundError(path, err)
	}
	return ParseHostConfig(path, data)
}

// ParseHostConfig is LoadHostConfig for data already in memory.
func ParseHostConfig(path string, data []byte) (HostConfig, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg HostConfig
	switch format := argus.DetectFormat(path); format {
	case argus.FormatJSON:
		err := json.Unmarshal(expanded, &cfg)
		if err != nil {
			return HostConfig{}, NewConfigParseError(path, err)
		}
	case argus.FormatYAML:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return HostConfig{}, NewConfigParseError(path, err)
		}
	default:
		return HostConfig{}, NewConfigParseError(path, fmt.Errorf("unsupported config format: %s", format.String()))
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return HostConfig{}, err
	}
	return cfg, nil
}
