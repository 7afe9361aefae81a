// record.go: per-plugin bookkeeping held by the registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// PluginRecord is the registry's entry for one loaded plugin instance.
// The identity, source and boundary never change after creation; only the
// lifecycle state moves, and only forward.
type PluginRecord struct {
	identity     PluginIdentity
	metadata     PluginMetadata
	source       string
	boundary     Boundary
	plugin       Plugin
	capabilities PluginCapabilities
	loadedAt     time.Time

	mu    sync.RWMutex
	state LifecycleState
}

func newPluginRecord(source string) *PluginRecord {
	return &PluginRecord{
		source: source,
		state:  StateDiscovered,
	}
}

// attach binds the boundary and its plugin to the record. Called once,
// right after the boundary opens.
func (r *PluginRecord) attach(b Boundary) {
	r.boundary = b
	r.plugin = b.Plugin()
	r.identity = IdentityOf(r.plugin)
	r.metadata = r.plugin.Metadata()
}

// ID returns the plugin id, or "" before the boundary is attached.
func (r *PluginRecord) ID() string { return r.identity.ID }

// Identity returns the identity snapshot taken at load time.
func (r *PluginRecord) Identity() PluginIdentity { return r.identity }

// Source returns the module path the record was loaded from.
func (r *PluginRecord) Source() string { return r.source }

// State returns the current lifecycle state.
func (r *PluginRecord) State() LifecycleState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// transition moves the record to the next state, rejecting anything that
// is not a legal lifecycle move.
func (r *PluginRecord) transition(to LifecycleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !CanTransition(r.state, to) {
		return NewInvalidTransitionError(r.state, to)
	}
	r.state = to
	if to == StateRunning {
		r.loadedAt = timecache.CachedTime()
	}
	return nil
}

// claim moves Running to Stopping. Exactly one caller wins for a given
// record; the rest get false.
func (r *PluginRecord) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return false
	}
	r.state = StateStopping
	return true
}

func (r *PluginRecord) setCapabilities(caps PluginCapabilities) {
	r.mu.Lock()
	r.capabilities = caps.Clone()
	r.mu.Unlock()
}

// Capabilities returns the capabilities cached at load time.
func (r *PluginRecord) Capabilities() PluginCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capabilities.Clone()
}

func (r *PluginRecord) info() RecordInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RecordInfo{
		Identity:     r.identity,
		State:        r.state,
		Source:       r.source,
		LoadedAt:     r.loadedAt,
		Capabilities: r.capabilities.Clone(),
		Metadata:     r.metadata,
	}
}
