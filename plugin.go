// plugin.go: core plugin and isolation boundary interfaces
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
)

// HostContext is an opaque handle the host hands to every plugin during
// Initialize. The manager forwards it unchanged.
type HostContext any

// Plugin is the contract every loadable module exposes.
//
// Identity accessors must be stable for the lifetime of an instance.
// Lifecycle hooks report failure through their error; a nil error is
// success. Hooks may block and must honor ctx.
type Plugin interface {
	ID() string
	Name() string
	Version() string
	Description() string
	Metadata() PluginMetadata

	// Initialize hands the plugin the host context. Called once, before Start.
	Initialize(ctx context.Context, host HostContext) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Unload releases everything the plugin holds. No other hook is
	// called afterwards.
	Unload(ctx context.Context) error

	Capabilities(ctx context.Context) (PluginCapabilities, error)

	// Execute runs command. Commands outside Capabilities fail with an
	// ErrCodeUnsupportedCommand error.
	Execute(ctx context.Context, command string, params map[string]any) (any, error)

	// IsCompatible reports whether the plugin accepts hostVersion.
	IsCompatible(hostVersion string) bool
}

// Boundary owns one loaded module instance. Releasing it makes the module
// unreachable from the host; nothing the plugin allocated survives.
type Boundary interface {
	// Plugin returns the instance living inside this boundary.
	Plugin() Plugin

	// Source is the resolved module path the boundary was opened from.
	Source() string

	// Release tears the boundary down. Calling it more than once is safe.
	Release(ctx context.Context) error
}

// BoundaryFactory opens isolation boundaries for module paths.
type BoundaryFactory interface {
	Open(ctx context.Context, path string) (Boundary, error)
}

// BoundaryFactoryFunc adapts a function to BoundaryFactory.
type BoundaryFactoryFunc func(ctx context.Context, path string) (Boundary, error)

// Open implements BoundaryFactory.
func (f BoundaryFactoryFunc) Open(ctx context.Context, path string) (Boundary, error) {
	return f(ctx, path)
}
