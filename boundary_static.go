// boundary_static.go: in-process boundary for statically linked plugins
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"sync"
)

// PluginConstructor builds a fresh plugin instance.
type PluginConstructor func() (Plugin, error)

// StaticBoundaryFactory serves plugins compiled into the host binary. A
// module path is bound to a constructor with Register; Open builds a new
// instance on every call.
//
// Go cannot unload code from a running process, so releasing a static
// boundary only drops the instance. Use SubprocessBoundaryFactory when
// plugin state must not outlive an unload.
type StaticBoundaryFactory struct {
	mu           sync.RWMutex
	constructors map[string]PluginConstructor
}

// NewStaticBoundaryFactory creates an empty factory.
func NewStaticBoundaryFactory() *StaticBoundaryFactory {
	return &StaticBoundaryFactory{constructors: make(map[string]PluginConstructor)}
}

// Register binds path to ctor, replacing any previous binding.
func (f *StaticBoundaryFactory) Register(path string, ctor PluginConstructor) error {
	module, err := ResolveModulePath(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[module] = ctor
	return nil
}

// Unregister removes the binding for path.
func (f *StaticBoundaryFactory) Unregister(path string) {
	module, err := ResolveModulePath(path)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.constructors, module)
}

// Open implements BoundaryFactory.
func (f *StaticBoundaryFactory) Open(ctx context.Context, path string) (Boundary, error) {
	module, err := ResolveModulePath(path)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	ctor, ok := f.constructors[module]
	f.mu.RUnlock()
	if !ok {
		return nil, NewModuleResolutionError(path, "no plugin registered for module", nil)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plugin, err := ctor()
	if err != nil {
		return nil, NewBoundaryError("plugin constructor failed", err)
	}
	if isNilPlugin(plugin) {
		return nil, NewBoundaryError("plugin constructor returned no instance", nil)
	}
	return &staticBoundary{source: module, plugin: plugin}, nil
}

type staticBoundary struct {
	source string

	mu     sync.Mutex
	plugin Plugin
}

func (b *staticBoundary) Plugin() Plugin {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plugin
}

func (b *staticBoundary) Source() string { return b.source }

func (b *staticBoundary) Release(ctx context.Context) error {
	b.mu.Lock()
	b.plugin = nil
	b.mu.Unlock()
	return nil
}
