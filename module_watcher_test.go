// module_watcher_test.go: tests for hot reload of changed modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModuleWatcher(t *testing.T, h *harness, reloadAll bool) *ModuleWatcher {
	t.Helper()
	w, err := NewModuleWatcher(h.manager, ModuleWatcherOptions{
		Debounce:  20 * time.Millisecond,
		ReloadAll: reloadAll,
		Logger:    h.logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestModuleWatcher_ReloadsChangedModule(t *testing.T) {
	h := newHarness(t)
	path, last := h.pluginModule("hot.so", func() *fakePlugin {
		p := newFakePlugin("hot")
		p.hotReload = true
		return p
	})
	w := newTestModuleWatcher(t, h, false)

	require.True(t, h.manager.LoadPlugin(context.Background(), path))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, w.Watched("hot"))

	first := last()
	h.events.Reset()
	require.NoError(t, os.WriteFile(path, []byte("module v2"), 0o600))

	eventually(t, func() bool {
		return h.events.Count(EventLoaded) == 1
	}, "plugin reloaded after its module changed")
	assert.Equal(t, []EventKind{EventUnloaded, EventLoaded}, h.events.Kinds())
	assert.NotSame(t, first, last())
	assert.Contains(t, first.Calls(), "unload")
	eventually(t, func() bool {
		return len(w.Watched("hot")) == 1
	}, "reloaded plugin is still watched")
}

func TestModuleWatcher_SkipsPluginsWithoutHotReload(t *testing.T) {
	h := newHarness(t)
	path := h.module("cold.so", func() Plugin { return newFakePlugin("cold") })
	newTestModuleWatcher(t, h, false)

	require.True(t, h.manager.LoadPlugin(context.Background(), path))
	h.events.Reset()
	require.NoError(t, os.WriteFile(path, []byte("module v2"), 0o600))

	eventually(t, func() bool {
		return h.logger.HasMessage("DEBUG", "Plugin does not support hot reload")
	}, "change noticed")
	assert.Empty(t, h.events.Events())
}

func TestModuleWatcher_ReloadAll(t *testing.T) {
	h := newHarness(t)
	path := h.module("cold.so", func() Plugin { return newFakePlugin("cold") })
	newTestModuleWatcher(t, h, true)

	require.True(t, h.manager.LoadPlugin(context.Background(), path))
	h.events.Reset()
	require.NoError(t, os.WriteFile(path, []byte("module v2"), 0o600))

	eventually(t, func() bool {
		return h.events.Count(EventLoaded) == 1
	}, "plugin reloaded with ReloadAll")
}

func TestModuleWatcher_TracksManifestAndModule(t *testing.T) {
	h := newHarness(t)
	binary := h.module("bin/tool", func() Plugin { return newFakePlugin("tool") })
	manifest := writeFile(t, h.dir, "tool.plugin.yaml", "id: tool\nname: Tool\nversion: 1.0.0\nmain: bin/tool\n")
	h.factory.mu.Lock()
	h.factory.ctors[manifest] = h.factory.ctors[binary]
	h.factory.mu.Unlock()

	w := newTestModuleWatcher(t, h, false)
	require.True(t, h.manager.LoadPlugin(context.Background(), manifest))

	watched := w.Watched("tool")
	require.Len(t, watched, 2)
	assert.Equal(t, filepath.Base(manifest), filepath.Base(watched[0]))
	assert.Equal(t, filepath.Base(binary), filepath.Base(watched[1]))

	require.True(t, h.manager.UnloadPlugin(context.Background(), "tool"))
	assert.Empty(t, w.Watched("tool"))
}

func TestModuleWatcher_PicksUpLoadedPlugins(t *testing.T) {
	h := newHarness(t)
	path := h.module("early.so", func() Plugin { return newFakePlugin("early") })
	require.True(t, h.manager.LoadPlugin(context.Background(), path))

	w := newTestModuleWatcher(t, h, false)
	assert.Len(t, w.Watched("early"), 1)
}

func TestModuleWatcher_Close(t *testing.T) {
	h := newHarness(t)
	path, _ := h.pluginModule("hot.so", func() *fakePlugin {
		p := newFakePlugin("hot")
		p.hotReload = true
		return p
	})
	w := newTestModuleWatcher(t, h, false)
	require.True(t, h.manager.LoadPlugin(context.Background(), path))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")

	h.events.Reset()
	require.NoError(t, os.WriteFile(path, []byte("module v2"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.events.Events(), "closed watcher does not reload")
}
