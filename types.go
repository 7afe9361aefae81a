// types.go: core data model for plugin identity, capabilities and lifecycle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"sort"
	"time"
)

// PluginIdentity is the value-level view of a plugin exposed to callers.
type PluginIdentity struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// IdentityOf snapshots the identity accessors of a plugin.
func IdentityOf(p Plugin) PluginIdentity {
	return PluginIdentity{
		ID:          p.ID(),
		Name:        p.Name(),
		Version:     p.Version(),
		Description: p.Description(),
	}
}

// PluginCapabilities describes what a plugin can do.
type PluginCapabilities struct {
	Commands              []string `json:"commands" yaml:"commands"`
	ProvidedServices      []string `json:"provided_services,omitempty" yaml:"provided_services,omitempty"`
	SupportsHotReload     bool     `json:"supports_hot_reload" yaml:"supports_hot_reload"`
	SupportsConfiguration bool     `json:"supports_configuration" yaml:"supports_configuration"`
}

// Supports reports whether command is one of the advertised commands.
func (c PluginCapabilities) Supports(command string) bool {
	for _, cmd := range c.Commands {
		if cmd == command {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c PluginCapabilities) Clone() PluginCapabilities {
	out := c
	out.Commands = append([]string(nil), c.Commands...)
	out.ProvidedServices = append([]string(nil), c.ProvidedServices...)
	return out
}

// PluginMetadata carries descriptive and compatibility information.
type PluginMetadata struct {
	Author        string             `json:"author,omitempty" yaml:"author,omitempty"`
	License       string             `json:"license,omitempty" yaml:"license,omitempty"`
	Homepage      string             `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Tags          []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Compatibility CompatibilityRange `json:"compatibility" yaml:"compatibility"`
	Extra         map[string]string  `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// LifecycleState is the position of a plugin record in its lifecycle.
//
// The forward chain is Discovered, Loading, Validating, Initializing,
// Running, Stopping, Unloading, Unloaded. Failed may be entered from any
// state before Running. Unloaded and Failed are terminal.
type LifecycleState int

const (
	StateDiscovered LifecycleState = iota
	StateLoading
	StateValidating
	StateInitializing
	StateRunning
	StateStopping
	StateUnloading
	StateUnloaded
	StateFailed
)

// String implements fmt.Stringer for LifecycleState.
func (s LifecycleState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s LifecycleState) IsTerminal() bool {
	return s == StateUnloaded || s == StateFailed
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to LifecycleState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return from < StateRunning
	}
	return to == from+1 && to <= StateUnloaded
}

// LoadResult is the detailed outcome of a load attempt.
type LoadResult struct {
	Success  bool
	Message  string
	PluginID string
	Errors   []string
	Warnings []string
	LoadTime time.Duration
}

// RecordInfo is a read-only snapshot of a registry record.
type RecordInfo struct {
	Identity     PluginIdentity
	State        LifecycleState
	Source       string
	LoadedAt     time.Time
	Capabilities PluginCapabilities
	Metadata     PluginMetadata
}

func sortIdentities(ids []PluginIdentity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].ID < ids[j].ID })
}
