// testing_helpers_test.go: shared fakes and fixtures for plughost tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errHookFailed = errors.New("hook failed")

// fakePlugin is a scriptable Plugin. Zero values describe a healthy plugin.
type fakePlugin struct {
	identity     PluginIdentity
	metadata     PluginMetadata
	incompatible bool
	commands     []string
	hotReload    bool

	initErr   error
	startErr  error
	stopErr   error
	unloadErr error
	capsErr   error

	// initGate, when set, blocks Initialize until closed or ctx ends.
	initGate chan struct{}
	// initEntered is closed when Initialize starts.
	initEntered chan struct{}

	mu    sync.Mutex
	calls []string
	host  HostContext
}

func newFakePlugin(id string) *fakePlugin {
	return &fakePlugin{
		identity: PluginIdentity{ID: id, Name: id + " plugin", Version: "1.0.0", Description: "fake " + id},
		commands: []string{"echo"},
	}
}

func (p *fakePlugin) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePlugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlugin) ID() string               { return p.identity.ID }
func (p *fakePlugin) Name() string             { return p.identity.Name }
func (p *fakePlugin) Version() string          { return p.identity.Version }
func (p *fakePlugin) Description() string      { return p.identity.Description }
func (p *fakePlugin) Metadata() PluginMetadata { return p.metadata }

func (p *fakePlugin) Initialize(ctx context.Context, host HostContext) error {
	p.record("initialize")
	p.mu.Lock()
	p.host = host
	p.mu.Unlock()
	if p.initEntered != nil {
		close(p.initEntered)
	}
	if p.initGate != nil {
		select {
		case <-p.initGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.initErr
}

func (p *fakePlugin) Start(ctx context.Context) error {
	p.record("start")
	return p.startErr
}

func (p *fakePlugin) Stop(ctx context.Context) error {
	p.record("stop")
	return p.stopErr
}

func (p *fakePlugin) Unload(ctx context.Context) error {
	p.record("unload")
	return p.unloadErr
}

func (p *fakePlugin) Capabilities(ctx context.Context) (PluginCapabilities, error) {
	p.record("capabilities")
	if p.capsErr != nil {
		return PluginCapabilities{}, p.capsErr
	}
	return PluginCapabilities{Commands: p.commands, SupportsHotReload: p.hotReload}, nil
}

func (p *fakePlugin) Execute(ctx context.Context, command string, params map[string]any) (any, error) {
	p.record("execute:" + command)
	return map[string]any{"command": command, "params": params}, nil
}

func (p *fakePlugin) IsCompatible(hostVersion string) bool {
	return !p.incompatible
}

// fakeBoundary holds one plugin and counts releases.
type fakeBoundary struct {
	plugin     Plugin
	source     string
	releaseErr error
	releases   atomic.Int32
}

func (b *fakeBoundary) Plugin() Plugin { return b.plugin }
func (b *fakeBoundary) Source() string { return b.source }

func (b *fakeBoundary) Release(ctx context.Context) error {
	b.releases.Add(1)
	return b.releaseErr
}

// fakeFactory opens boundaries from per-path plugin constructors.
type fakeFactory struct {
	mu         sync.Mutex
	ctors      map[string]func() Plugin
	releaseErr map[string]error
	openErr    map[string]error
	opened     []*fakeBoundary
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		ctors:      make(map[string]func() Plugin),
		releaseErr: make(map[string]error),
		openErr:    make(map[string]error),
	}
}

func (f *fakeFactory) Open(ctx context.Context, path string) (Boundary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	ctor, ok := f.ctors[path]
	if !ok {
		return nil, NewModuleResolutionError(path, "no fake registered", nil)
	}
	b := &fakeBoundary{plugin: ctor(), source: path, releaseErr: f.releaseErr[path]}
	f.opened = append(f.opened, b)
	return b, nil
}

func (f *fakeFactory) Opened() []*fakeBoundary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeBoundary(nil), f.opened...)
}

// eventRecorder collects events delivered to it.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) Kinds() []EventKind {
	var kinds []EventKind
	for _, e := range r.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *eventRecorder) Count(kind EventKind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// harness wires a Manager to a fakeFactory and an eventRecorder.
type harness struct {
	t       *testing.T
	dir     string
	factory *fakeFactory
	logger  *TestLogger
	events  *eventRecorder
	manager *Manager
}

func newHarness(t *testing.T, opts ...func(*ManagerConfig)) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		dir:     t.TempDir(),
		factory: newFakeFactory(),
		logger:  NewTestLogger(),
		events:  &eventRecorder{},
	}
	cfg := ManagerConfig{
		HostVersion: "1.0.0",
		HostContext: "host-context",
		Logger:      h.logger,
		Boundaries:  h.factory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.manager = NewManager(cfg)
	h.manager.Subscribe(h.events.handle)
	return h
}

// module creates an empty module file and binds ctor to it.
func (h *harness) module(name string, ctor func() Plugin) string {
	h.t.Helper()
	path := writeFile(h.t, h.dir, name, "module")
	h.factory.mu.Lock()
	h.factory.ctors[path] = ctor
	h.factory.mu.Unlock()
	return path
}

// pluginModule binds a fresh fakePlugin per open and returns the path and
// a pointer to the most recently built instance.
func (h *harness) pluginModule(name string, build func() *fakePlugin) (string, func() *fakePlugin) {
	var mu sync.Mutex
	var last *fakePlugin
	path := h.module(name, func() Plugin {
		p := build()
		mu.Lock()
		last = p
		mu.Unlock()
		return p
	})
	return path, func() *fakePlugin {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
