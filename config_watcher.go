// config_watcher.go: hot reload of the host configuration with Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigApplier receives validated configurations.
type ConfigApplier interface {
	ApplyConfig(cfg HostConfig) error
}

// ConfigWatcherOptions tunes the Argus watcher.
type ConfigWatcherOptions struct {
	PollInterval time.Duration
	CacheTTL     time.Duration

	// AuditConfig enables the Argus audit trail when Enabled is set.
	AuditConfig argus.AuditConfig

	// ErrorHandler overrides logging of watch errors.
	ErrorHandler func(err error, path string)
}

// DefaultConfigWatcherOptions returns the defaults used by the CLI.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     time.Second,
	}
}

// ConfigWatcher reloads a HostConfig file when it changes and hands every
// valid version to a ConfigApplier. Invalid or unreadable versions are
// logged and the last good configuration stays in effect.
type ConfigWatcher struct {
	path    string
	applier ConfigApplier
	logger  Logger
	options ConfigWatcherOptions

	watcher     *argus.Watcher
	auditLogger *argus.AuditLogger

	current atomic.Pointer[HostConfig]

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewConfigWatcher creates a watcher for path. Nothing is read until Start.
func NewConfigWatcher(path string, applier ConfigApplier, options ConfigWatcherOptions, logger any) (*ConfigWatcher, error) {
	log := NewLogger(logger)
	def := DefaultConfigWatcherOptions()
	if options.PollInterval <= 0 {
		options.PollInterval = def.PollInterval
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = def.CacheTTL
	}

	var auditLogger *argus.AuditLogger
	if options.AuditConfig.Enabled {
		var err error
		auditLogger, err = argus.NewAuditLogger(options.AuditConfig)
		if err != nil {
			return nil, NewConfigWatcherError("failed to create audit logger", err)
		}
	}

	w := &ConfigWatcher{
		path:        path,
		applier:     applier,
		logger:      log.With("component", "config_watcher"),
		options:     options,
		auditLogger: auditLogger,
	}
	w.watcher = argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      1,
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, file string) {
			if options.ErrorHandler != nil {
				options.ErrorHandler(err, file)
				return
			}
			w.logger.Error("Config file watching error", "error", err, "file", file)
		},
	})
	return w, nil
}

// Start loads and applies the initial configuration, then begins watching.
// A stopped watcher cannot be restarted.
func (w *ConfigWatcher) Start() error {
	if w.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	initial, err := LoadHostConfig(w.path)
	if err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to load initial configuration", err)
	}
	if err := w.applier.ApplyConfig(initial); err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to apply initial configuration", err)
	}
	w.current.Store(&initial)
	w.audit("config_loaded", map[string]interface{}{"path": w.path})

	if err := w.watcher.Watch(w.path, w.handleChange); err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := w.watcher.Start(); err != nil {
		w.enabled.Store(false)
		return NewConfigWatcherError("failed to start config watcher", err)
	}

	w.logger.Info("Config watcher started", "path", w.path, "poll_interval", w.options.PollInterval)
	return nil
}

// Stop ends watching. Only the first call does any work.
func (w *ConfigWatcher) Stop() error {
	if w.stopped.Load() {
		return NewConfigWatcherError("config watcher is already stopped", nil)
	}

	var stopErr error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		w.stopped.Store(true)
		if !w.enabled.CompareAndSwap(true, false) {
			stopErr = NewConfigWatcherError("config watcher is not running", nil)
			return
		}
		if err := w.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop config watcher", err)
			return
		}
		if w.auditLogger != nil {
			if err := w.auditLogger.Close(); err != nil {
				w.logger.Warn("Failed to close audit logger", "error", err)
			}
		}
		w.logger.Info("Config watcher stopped", "path", w.path)
	})
	return stopErr
}

// IsRunning reports whether the watcher is active.
func (w *ConfigWatcher) IsRunning() bool {
	return w.enabled.Load() && !w.stopped.Load()
}

// Current returns the last applied configuration, or nil before Start.
func (w *ConfigWatcher) Current() *HostConfig {
	return w.current.Load()
}

func (w *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	w.logger.Debug("Config file change detected",
		"path", event.Path,
		"size", event.Size,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		w.logger.Warn("Config file was deleted, keeping current configuration", "path", event.Path)
		return
	}
	w.reload(event.Path)
}

// reload reads path and applies it when valid.
func (w *ConfigWatcher) reload(path string) {
	cfg, err := LoadHostConfig(path)
	if err != nil {
		w.logger.Error("Rejected configuration change", "path", path, "error", err)
		w.audit("config_rejected", map[string]interface{}{"path": path, "error": err.Error()})
		return
	}
	if err := w.applier.ApplyConfig(cfg); err != nil {
		w.logger.Error("Failed to apply configuration", "path", path, "error", err)
		w.audit("config_apply_failed", map[string]interface{}{"path": path, "error": err.Error()})
		return
	}
	w.current.Store(&cfg)
	w.logger.Info("Configuration reloaded", "path", path, "host_version", cfg.HostVersion)
	w.audit("config_reloaded", map[string]interface{}{"path": path, "host_version": cfg.HostVersion})
}

func (w *ConfigWatcher) audit(event string, context map[string]interface{}) {
	if w.auditLogger != nil {
		w.auditLogger.LogSecurityEvent(event, "Host configuration change", context)
	}
}
