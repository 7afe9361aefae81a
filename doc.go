// Package plughost loads, runs and unloads plugin modules for a Go host.
//
// A module is an executable built around a Plugin and served with Serve. The
// host starts every module in its own child process and talks to it over
// gRPC on a private unix socket, so unloading a plugin terminates the
// process and nothing the module allocated survives. Plugins compiled into
// the host can be registered with a StaticBoundaryFactory instead.
//
// Key Features:
//   - Manifest discovery (plugin.yaml / plugin.json) with JSON schema checks
//   - Identity and host-version compatibility validation before admission
//   - Forward-only lifecycle per plugin record, at most one running record per id
//   - Synchronous Loaded / Unloaded / Error event channel
//   - Hot reload of changed modules and of the host configuration
//   - Prometheus metrics and OpenTelemetry spans for every lifecycle operation
//
// Basic Usage:
//
//	manager := plughost.NewManager(plughost.ManagerConfig{
//		HostVersion: "1.2.0",
//		Logger:      plughost.NewZerologAdapter(zerolog.New(os.Stderr)),
//	})
//
//	for _, found := range manager.DiscoverPlugins(ctx, "./plugins") {
//		if found.OK() {
//			manager.LoadPlugin(ctx, found.Source)
//		}
//	}
//
//	out, err := manager.Execute(ctx, "calculator", "add", map[string]any{"a": 2, "b": 3})
//
//	defer manager.Shutdown(context.Background())
//
// Writing a module:
//
//	func main() {
//		plugin := plughost.NewBasePlugin(plughost.BasePluginConfig{
//			Identity: plughost.PluginIdentity{ID: "greeter", Name: "Greeter", Version: "1.0.0"},
//			Commands: map[string]plughost.CommandFunc{"hello": hello},
//		})
//		if err := plughost.Serve(plugin); err != nil {
//			os.Exit(1)
//		}
//	}
//
// Lifecycle methods never panic or return errors for expected failures.
// LoadPlugin and UnloadPlugin report a bool and publish the details as an
// EventError; LoadPluginWithResult returns them in a LoadResult.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package plughost
