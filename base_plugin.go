// base_plugin.go: reusable Plugin implementation for module authors
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PluginStatus is the plugin-side view of its own lifecycle, tracked by
// BasePlugin. It is independent of the host's LifecycleState.
type PluginStatus int

const (
	PluginStatusDiscovered PluginStatus = iota
	PluginStatusLoading
	PluginStatusLoaded
	PluginStatusRunning
	PluginStatusStopped
	PluginStatusUnloading
	PluginStatusUnloaded
	PluginStatusFailed
)

// String implements fmt.Stringer for PluginStatus.
func (s PluginStatus) String() string {
	switch s {
	case PluginStatusDiscovered:
		return "discovered"
	case PluginStatusLoading:
		return "loading"
	case PluginStatusLoaded:
		return "loaded"
	case PluginStatusRunning:
		return "running"
	case PluginStatusStopped:
		return "stopped"
	case PluginStatusUnloading:
		return "unloading"
	case PluginStatusUnloaded:
		return "unloaded"
	case PluginStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommandFunc handles one Execute command.
type CommandFunc func(ctx context.Context, params map[string]any) (any, error)

// PluginHooks are optional callbacks run by BasePlugin at each lifecycle step.
type PluginHooks struct {
	OnInitialize func(ctx context.Context, host HostContext) error
	OnStart      func(ctx context.Context) error
	OnStop       func(ctx context.Context) error
	OnUnload     func(ctx context.Context) error
}

// BasePluginConfig describes a plugin built on BasePlugin.
type BasePluginConfig struct {
	Identity PluginIdentity
	Metadata PluginMetadata

	// Commands is the command table. Capabilities.Commands defaults to its
	// sorted keys when left empty.
	Commands     map[string]CommandFunc
	Capabilities PluginCapabilities

	Hooks  PluginHooks
	Logger Logger
}

// BasePlugin implements Plugin with status bookkeeping and a command table.
//
// Start is only accepted from Loaded. Stop on a plugin that is not running
// succeeds without doing anything. Unload stops a running plugin first.
// Execute refuses commands while not running and commands missing from the
// capabilities.
type BasePlugin struct {
	identity     PluginIdentity
	metadata     PluginMetadata
	commands     map[string]CommandFunc
	capabilities PluginCapabilities
	hooks        PluginHooks
	logger       Logger

	mu     sync.RWMutex
	status PluginStatus
	host   HostContext
}

// NewBasePlugin builds a BasePlugin from config.
func NewBasePlugin(config BasePluginConfig) *BasePlugin {
	logger := config.Logger
	if logger == nil {
		logger = DefaultLogger()
	}

	caps := config.Capabilities.Clone()
	if len(caps.Commands) == 0 {
		for name := range config.Commands {
			caps.Commands = append(caps.Commands, name)
		}
		sort.Strings(caps.Commands)
	}

	commands := make(map[string]CommandFunc, len(config.Commands))
	for name, fn := range config.Commands {
		commands[name] = fn
	}

	return &BasePlugin{
		identity:     config.Identity,
		metadata:     config.Metadata,
		commands:     commands,
		capabilities: caps,
		hooks:        config.Hooks,
		logger:       logger.With("plugin", config.Identity.ID),
		status:       PluginStatusDiscovered,
	}
}

func (b *BasePlugin) ID() string               { return b.identity.ID }
func (b *BasePlugin) Name() string             { return b.identity.Name }
func (b *BasePlugin) Version() string          { return b.identity.Version }
func (b *BasePlugin) Description() string      { return b.identity.Description }
func (b *BasePlugin) Metadata() PluginMetadata { return b.metadata }

// Status returns the current plugin-side status.
func (b *BasePlugin) Status() PluginStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Host returns the host context received in Initialize.
func (b *BasePlugin) Host() HostContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host
}

func (b *BasePlugin) setStatus(s PluginStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Initialize implements Plugin.
func (b *BasePlugin) Initialize(ctx context.Context, host HostContext) error {
	b.logger.Info("Initializing plugin", "name", b.identity.Name, "version", b.identity.Version)

	b.mu.Lock()
	b.host = host
	b.status = PluginStatusLoading
	b.mu.Unlock()

	if b.hooks.OnInitialize != nil {
		if err := b.hooks.OnInitialize(ctx, host); err != nil {
			b.setStatus(PluginStatusFailed)
			b.logger.Error("Plugin initialization failed", "error", err)
			return NewLifecycleHookError(b.identity.ID, "initialize", err)
		}
	}

	b.setStatus(PluginStatusLoaded)
	return nil
}

// Start implements Plugin.
func (b *BasePlugin) Start(ctx context.Context) error {
	if status := b.Status(); status != PluginStatusLoaded {
		b.logger.Error("Cannot start plugin in current status", "status", status.String())
		return NewLifecycleHookError(b.identity.ID, "start",
			fmt.Errorf("cannot start from status %s", status))
	}

	if b.hooks.OnStart != nil {
		if err := b.hooks.OnStart(ctx); err != nil {
			b.setStatus(PluginStatusFailed)
			b.logger.Error("Plugin start failed", "error", err)
			return NewLifecycleHookError(b.identity.ID, "start", err)
		}
	}

	b.setStatus(PluginStatusRunning)
	b.logger.Info("Plugin started")
	return nil
}

// Stop implements Plugin.
func (b *BasePlugin) Stop(ctx context.Context) error {
	if b.Status() != PluginStatusRunning {
		b.logger.Debug("Plugin is not running, nothing to stop")
		return nil
	}

	if b.hooks.OnStop != nil {
		if err := b.hooks.OnStop(ctx); err != nil {
			b.logger.Error("Plugin stop failed", "error", err)
			return NewLifecycleHookError(b.identity.ID, "stop", err)
		}
	}

	b.setStatus(PluginStatusStopped)
	b.logger.Info("Plugin stopped")
	return nil
}

// Unload implements Plugin.
func (b *BasePlugin) Unload(ctx context.Context) error {
	if b.Status() == PluginStatusRunning {
		if err := b.Stop(ctx); err != nil {
			b.logger.Warn("Stop before unload failed", "error", err)
		}
	}

	b.setStatus(PluginStatusUnloading)

	if b.hooks.OnUnload != nil {
		if err := b.hooks.OnUnload(ctx); err != nil {
			b.logger.Error("Plugin unload failed", "error", err)
			return NewLifecycleHookError(b.identity.ID, "unload", err)
		}
	}

	b.mu.Lock()
	b.status = PluginStatusUnloaded
	b.host = nil
	b.mu.Unlock()
	b.logger.Info("Plugin unloaded")
	return nil
}

// Capabilities implements Plugin.
func (b *BasePlugin) Capabilities(ctx context.Context) (PluginCapabilities, error) {
	return b.capabilities.Clone(), nil
}

// Execute implements Plugin.
func (b *BasePlugin) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	if status := b.Status(); status != PluginStatusRunning {
		return nil, NewLifecycleHookError(b.identity.ID, "execute",
			fmt.Errorf("plugin is not running, current status: %s", status))
	}

	fn, ok := b.commands[command]
	if !ok || !b.capabilities.Supports(command) {
		return nil, NewUnsupportedCommandError(b.identity.ID, command)
	}

	if params == nil {
		params = map[string]any{}
	}

	b.logger.Debug("Executing command", "command", command)
	result, err := fn(ctx, params)
	if err != nil {
		b.logger.Error("Command failed", "command", command, "error", err)
		return nil, err
	}
	return result, nil
}

// IsCompatible implements Plugin.
func (b *BasePlugin) IsCompatible(hostVersion string) bool {
	return b.metadata.Compatibility.Allows(hostVersion)
}
