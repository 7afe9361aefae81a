// manager.go: plugin manager orchestrating load, unload and reload
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/agilira/plughost"

// ManagerConfig configures a Manager. Zero fields take defaults.
type ManagerConfig struct {
	// HostVersion is checked against every plugin's compatibility range.
	// Defaults to DefaultHostVersion.
	HostVersion string

	// HostContext is passed untouched to every plugin's Initialize.
	HostContext HostContext

	// Logger accepts anything NewLogger understands.
	Logger any

	// Boundaries opens modules. Defaults to a SubprocessBoundaryFactory.
	Boundaries BoundaryFactory

	Discovery DiscoveryOptions

	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

type managerSettings struct {
	hostVersion string
	discovery   DiscoveryOptions
}

// Manager loads modules into isolation boundaries, validates and
// initializes the plugins they contain and keeps the registry of running
// plugins. All methods are safe for concurrent use. Operations on the same
// plugin id are serialized by the registry; operations on different ids
// run in parallel.
//
// Expected failures never panic and never surface as Go errors from the
// lifecycle methods: they return false and emit an EventError.
//
// Example:
//
//	manager := plughost.NewManager(plughost.ManagerConfig{HostVersion: "1.2.0"})
//	unsubscribe := manager.Subscribe(func(e plughost.Event) {
//	    log.Printf("%s %s", e.Kind, e.PluginID)
//	})
//	defer unsubscribe()
//
//	if manager.LoadPlugin(ctx, "./plugins/calculator/plugin.yaml") {
//	    out, err := manager.Execute(ctx, "calculator", "add", map[string]any{"a": 1, "b": 2})
//	}
type Manager struct {
	boundaries  BoundaryFactory
	hostContext HostContext
	logger      Logger
	tracer      trace.Tracer

	registry  *Registry
	events    *EventBus
	validator *Validator
	scanner   *Scanner

	settings atomic.Pointer[managerSettings]
	closed   atomic.Bool

	// admit orders registry admission against Shutdown: loads hold it
	// shared from the closed check until the record is Running.
	admit sync.RWMutex
}

// NewManager creates a manager with an empty registry.
func NewManager(config ManagerConfig) *Manager {
	logger := NewLogger(config.Logger)

	hostVersion := config.HostVersion
	if hostVersion == "" {
		hostVersion = DefaultHostVersion
	}
	boundaries := config.Boundaries
	if boundaries == nil {
		boundaries = NewSubprocessBoundaryFactory(SubprocessOptions{Logger: logger})
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	m := &Manager{
		boundaries:  boundaries,
		hostContext: config.HostContext,
		logger:      logger,
		tracer:      tracer,
		registry:    NewRegistry(),
		events:      NewEventBus(logger),
	}
	m.settings.Store(&managerSettings{
		hostVersion: hostVersion,
		discovery:   config.Discovery.withDefaults(),
	})
	m.validator = NewValidator(func() string { return m.settings.Load().hostVersion })
	m.scanner = NewScanner(func() DiscoveryOptions { return m.settings.Load().discovery }, logger)
	return m
}

// HostVersion returns the version plugins are currently validated against.
func (m *Manager) HostVersion() string {
	return m.settings.Load().hostVersion
}

// ApplyConfig swaps the host version and discovery options. Plugins that
// are already running are not re-validated.
func (m *Manager) ApplyConfig(cfg HostConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next := &managerSettings{
		hostVersion: cfg.HostVersion,
		discovery:   cfg.Discovery.withDefaults(),
	}
	prev := m.settings.Swap(next)
	if prev.hostVersion != next.hostVersion {
		m.logger.Info("Host version changed", "old", prev.hostVersion, "new", next.hostVersion)
	}
	return nil
}

// Subscribe registers handler for lifecycle events and returns a function
// that removes it. Handlers run synchronously on the goroutine performing
// the operation and only see events emitted after subscribing.
func (m *Manager) Subscribe(handler EventHandler) func() {
	return m.events.Subscribe(handler)
}

// GetLoadedPlugins returns the identities of every registered plugin,
// sorted by id.
func (m *Manager) GetLoadedPlugins() []PluginIdentity {
	return m.registry.Snapshot()
}

// GetPluginByID returns the identity registered under id.
func (m *Manager) GetPluginByID(id string) (PluginIdentity, bool) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return PluginIdentity{}, false
	}
	return rec.Identity(), true
}

// GetRecordInfo returns a snapshot of the record registered under id.
func (m *Manager) GetRecordInfo(id string) (RecordInfo, bool) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return RecordInfo{}, false
	}
	return rec.info(), true
}

// DiscoverPlugins scans dir for module manifests. No module is opened and
// the registry is not touched.
func (m *Manager) DiscoverPlugins(ctx context.Context, dir string) []DiscoveryResult {
	ctx, span := m.tracer.Start(ctx, "plughost.discover", trace.WithAttributes(
		attribute.String("plughost.dir", dir)))
	defer span.End()

	results := m.scanner.Discover(ctx, dir)
	span.SetAttributes(attribute.Int("plughost.results", len(results)))
	return results
}

// ValidatePlugin runs the admission checks on plugin without loading it.
func (m *Manager) ValidatePlugin(ctx context.Context, plugin Plugin) error {
	return m.validator.Validate(ctx, plugin)
}

// LoadPlugin loads the module at path and reports whether the plugin is now
// running. Use LoadPluginWithResult for the failure details.
func (m *Manager) LoadPlugin(ctx context.Context, path string) bool {
	return m.LoadPluginWithResult(ctx, path).Success
}

// LoadPluginWithResult loads the module at path and returns the outcome.
func (m *Manager) LoadPluginWithResult(ctx context.Context, path string) LoadResult {
	ctx, span := m.tracer.Start(ctx, "plughost.load", trace.WithAttributes(
		attribute.String("plughost.source", path)))
	defer span.End()

	result := m.load(ctx, path)

	span.SetAttributes(
		attribute.String("plughost.plugin_id", result.PluginID),
		attribute.Bool("plughost.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	return result
}

// loadAttempt carries the state of one pass through the load pipeline.
type loadAttempt struct {
	m        *Manager
	ctx      context.Context
	path     string
	start    time.Time
	record   *PluginRecord
	boundary Boundary
	plugin   Plugin
	inited   bool
	started  bool
	warnings []string
}

func (m *Manager) load(ctx context.Context, path string) LoadResult {
	a := &loadAttempt{m: m, ctx: ctx, path: path, start: time.Now()}

	if m.closed.Load() {
		return a.fail(NewManagerClosedError())
	}
	if err := ctx.Err(); err != nil {
		return a.fail(err)
	}
	if _, err := os.Stat(path); err != nil {
		return a.fail(NewModuleNotFoundError(path, err))
	}

	a.record = newPluginRecord(path)
	if err := a.record.transition(StateLoading); err != nil {
		return a.fail(err)
	}

	b, err := m.boundaries.Open(ctx, path)
	if err != nil {
		return a.fail(err)
	}
	a.boundary = b

	if err := a.record.transition(StateValidating); err != nil {
		return a.fail(err)
	}
	plugin := b.Plugin()
	if err := m.validator.Validate(ctx, plugin); err != nil {
		return a.fail(err)
	}
	a.plugin = plugin
	a.record.attach(b)
	id := a.record.ID()

	// Refuse early so a second copy of a loaded plugin is never initialized.
	if m.registry.Contains(id) {
		return a.fail(NewDuplicatePluginError(id))
	}

	if err := a.record.transition(StateInitializing); err != nil {
		return a.fail(err)
	}
	if err := plugin.Initialize(ctx, m.hostContext); err != nil {
		return a.fail(NewLifecycleHookError(id, "initialize", err))
	}
	a.inited = true
	if err := plugin.Start(ctx); err != nil {
		return a.fail(NewLifecycleHookError(id, "start", err))
	}
	a.started = true

	caps, err := plugin.Capabilities(ctx)
	if err != nil {
		return a.fail(NewLifecycleHookError(id, "capabilities", err))
	}
	a.record.setCapabilities(caps)

	if err := ctx.Err(); err != nil {
		return a.fail(err)
	}
	if err := m.admitRecord(a.record); err != nil {
		return a.fail(err)
	}

	loadTime := time.Since(a.start)
	m.logger.Info("Plugin loaded",
		"plugin", id,
		"version", a.record.Identity().Version,
		"source", path,
		"duration", loadTime)

	event := newEvent(EventLoaded, id, a.record.Source(), "Plugin loaded")
	event.Duration = loadTime
	m.events.Publish(event)

	return LoadResult{
		Success:  true,
		Message:  "Plugin loaded successfully",
		PluginID: id,
		Warnings: a.warnings,
		LoadTime: loadTime,
	}
}

// fail tears down whatever the attempt built, emits EventError and returns
// the failed result. The registry is never touched here.
func (a *loadAttempt) fail(cause error) LoadResult {
	m := a.m
	pluginID := ""
	if a.record != nil {
		pluginID = a.record.ID()
		if err := a.record.transition(StateFailed); err != nil {
			m.logger.Debug("Record already terminal", "plugin", pluginID, "error", err)
		}
	}

	cleanupCtx := context.WithoutCancel(a.ctx)
	if a.started {
		if err := a.plugin.Stop(cleanupCtx); err != nil {
			a.warn("stop after failed load: " + err.Error())
		}
	}
	if a.inited {
		if err := a.plugin.Unload(cleanupCtx); err != nil {
			a.warn("unload after failed load: " + err.Error())
		}
	}
	if a.boundary != nil {
		if err := a.boundary.Release(cleanupCtx); err != nil {
			a.warn("release after failed load: " + err.Error())
		}
	}

	message := "Error loading plugin: " + cause.Error()
	m.logger.Error("Plugin load failed", "source", a.path, "plugin", pluginID, "error", cause)

	eventID := pluginID
	if eventID == "" {
		eventID = a.path
	}
	event := newEvent(EventError, eventID, a.path, message)
	event.Err = cause
	m.events.Publish(event)

	return LoadResult{
		Success:  false,
		Message:  message,
		PluginID: pluginID,
		Errors:   []string{cause.Error()},
		Warnings: a.warnings,
		LoadTime: time.Since(a.start),
	}
}

func (a *loadAttempt) warn(msg string) {
	a.warnings = append(a.warnings, msg)
	a.m.logger.Warn("Cleanup after failed load", "source", a.path, "detail", msg)
}

// UnloadPlugin stops and unloads the plugin registered under id, releases
// its boundary and removes it from the registry. It returns false when id
// is not running or another caller is already unloading it. Hook or
// release failures emit an additional EventError but the plugin is still
// removed.
func (m *Manager) UnloadPlugin(ctx context.Context, id string) bool {
	ctx, span := m.tracer.Start(ctx, "plughost.unload", trace.WithAttributes(
		attribute.String("plughost.plugin_id", id)))
	defer span.End()

	rec, ok := m.registry.Get(id)
	if !ok {
		m.logger.Debug("Unload of unknown plugin", "plugin", id)
		span.SetStatus(codes.Error, "plugin not found")
		return false
	}
	if !rec.claim() {
		m.logger.Debug("Plugin is not running", "plugin", id, "state", rec.State())
		span.SetStatus(codes.Error, "plugin not running")
		return false
	}

	var errs []error
	if err := rec.plugin.Stop(ctx); err != nil {
		errs = append(errs, NewLifecycleHookError(id, "stop", err))
	}
	if err := rec.transition(StateUnloading); err != nil {
		errs = append(errs, err)
	}
	if err := rec.plugin.Unload(ctx); err != nil {
		errs = append(errs, NewLifecycleHookError(id, "unload", err))
	}
	if err := rec.boundary.Release(context.WithoutCancel(ctx)); err != nil {
		errs = append(errs, NewBoundaryError("release failed", err))
	}

	m.registry.Remove(id, rec)
	if err := rec.transition(StateUnloaded); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		m.logger.Warn("Plugin unloaded with errors", "plugin", id, "error", err)
		span.RecordError(err)
		event := newEvent(EventError, id, rec.Source(), "Error unloading plugin: "+err.Error())
		event.Err = err
		m.events.Publish(event)
	}

	m.logger.Info("Plugin unloaded", "plugin", id, "source", rec.Source())
	m.events.Publish(newEvent(EventUnloaded, id, rec.Source(), "Plugin unloaded"))
	return true
}

// ReloadPlugin unloads id and loads its module again from the same source.
// When the second leg fails the plugin stays unloaded.
func (m *Manager) ReloadPlugin(ctx context.Context, id string) bool {
	ctx, span := m.tracer.Start(ctx, "plughost.reload", trace.WithAttributes(
		attribute.String("plughost.plugin_id", id)))
	defer span.End()

	rec, ok := m.registry.Get(id)
	if !ok {
		span.SetStatus(codes.Error, "plugin not found")
		return false
	}
	source := rec.Source()

	if !m.UnloadPlugin(ctx, id) {
		span.SetStatus(codes.Error, "unload failed")
		return false
	}
	if !m.LoadPlugin(ctx, source) {
		m.logger.Warn("Plugin reload failed, plugin left unloaded", "plugin", id, "source", source)
		span.SetStatus(codes.Error, "load failed")
		return false
	}
	m.logger.Info("Plugin reloaded", "plugin", id, "source", source)
	return true
}

// Execute runs command on the running plugin id.
func (m *Manager) Execute(ctx context.Context, id, command string, params map[string]any) (any, error) {
	ctx, span := m.tracer.Start(ctx, "plughost.execute", trace.WithAttributes(
		attribute.String("plughost.plugin_id", id),
		attribute.String("plughost.command", command)))
	defer span.End()

	result, err := m.execute(ctx, id, command, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (m *Manager) execute(ctx context.Context, id, command string, params map[string]any) (any, error) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return nil, NewPluginNotFoundError(id)
	}
	if state := rec.State(); state != StateRunning {
		return nil, NewPluginNotRunningError(id, state)
	}
	if !rec.Capabilities().Supports(command) {
		return nil, NewUnsupportedCommandError(id, command)
	}
	if params == nil {
		params = map[string]any{}
	}
	return rec.plugin.Execute(ctx, command, params)
}

// admitRecord inserts rec and moves it to Running unless the manager is
// closed or the id is taken.
func (m *Manager) admitRecord(rec *PluginRecord) error {
	m.admit.RLock()
	defer m.admit.RUnlock()

	if m.closed.Load() {
		return NewManagerClosedError()
	}
	if !m.registry.TryInsert(rec) {
		return NewDuplicatePluginError(rec.ID())
	}
	if err := rec.transition(StateRunning); err != nil {
		m.registry.Remove(rec.ID(), rec)
		return err
	}
	return nil
}

// Shutdown stops accepting loads and unloads every plugin concurrently. It
// returns ctx.Err() if ctx ends before all plugins are unloaded.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.admit.Lock()
	m.closed.Store(true)
	m.admit.Unlock()

	ids := m.registry.Snapshot()
	m.logger.Info("Shutting down plugin manager", "plugins", len(ids))

	var g errgroup.Group
	for _, identity := range ids {
		g.Go(func() error {
			m.UnloadPlugin(ctx, identity.ID)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Plugin manager shut down")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Plugin manager shutdown timed out", "remaining", m.registry.Len())
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (m *Manager) IsShutdown() bool {
	return m.closed.Load()
}
