// registry.go: concurrent id -> record table
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"sync"
)

// Registry maps plugin ids to their records. TryInsert and Remove are the
// only mutations and are atomic; readers always see a consistent table.
// Lifecycle hooks never run while the registry lock is held.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*PluginRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*PluginRecord)}
}

// TryInsert adds rec under its id. It returns false, leaving the table
// untouched, when a record with that id is already present in any state.
func (r *Registry) TryInsert(rec *PluginRecord) bool {
	id := rec.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[id]; exists {
		return false
	}
	r.records[id] = rec
	return true
}

// Get returns the record for id.
func (r *Registry) Get(id string) (*PluginRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Contains reports whether id is present.
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Remove deletes the entry for id only if it still points at rec, so a
// late remove never evicts a newer record loaded under the same id.
func (r *Registry) Remove(id string, rec *PluginRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.records[id]
	if !ok || current != rec {
		return false
	}
	delete(r.records, id)
	return true
}

// Snapshot returns the identities of every record, sorted by id. The slice
// is a copy; later mutations do not affect it.
func (r *Registry) Snapshot() []PluginIdentity {
	r.mu.RLock()
	out := make([]PluginIdentity, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Identity())
	}
	r.mu.RUnlock()

	sortIdentities(out)
	return out
}

// Records returns the current records in no particular order.
func (r *Registry) Records() []*PluginRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PluginRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
