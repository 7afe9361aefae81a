// module_watcher.go: reloads plugins whose module files change on disk
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ModuleWatcherOptions configures a ModuleWatcher.
type ModuleWatcherOptions struct {
	// Debounce is how long a file must stay quiet before its plugin is
	// reloaded. Defaults to 250ms.
	Debounce time.Duration

	// ReloadAll reloads every plugin on change. By default only plugins
	// advertising SupportsHotReload are reloaded.
	ReloadAll bool

	// ReloadTimeout bounds each reload. Defaults to one minute.
	ReloadTimeout time.Duration

	Logger any
}

// ModuleWatcher follows the lifecycle events of a Manager and watches the
// manifest and module file of every loaded plugin. When one of them is
// written, the owning plugin is reloaded from its original source.
type ModuleWatcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	logger  Logger
	options ModuleWatcherOptions

	mu     sync.Mutex
	owners map[string]string   // watched file -> plugin id
	files  map[string][]string // plugin id -> watched files
	dirs   map[string]int      // watched directory -> file count
	timers map[string]*time.Timer

	unsubscribe func()
	done        chan struct{}
	loopDone    chan struct{}
	closeOnce   sync.Once
}

// NewModuleWatcher starts watching. Plugins loaded before the call are
// picked up from the registry.
func NewModuleWatcher(manager *Manager, options ModuleWatcherOptions) (*ModuleWatcher, error) {
	if options.Debounce <= 0 {
		options.Debounce = 250 * time.Millisecond
	}
	if options.ReloadTimeout <= 0 {
		options.ReloadTimeout = time.Minute
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewBoundaryError("cannot create module watcher", err)
	}

	w := &ModuleWatcher{
		manager:  manager,
		watcher:  fw,
		logger:   NewLogger(options.Logger).With("component", "module_watcher"),
		options:  options,
		owners:   make(map[string]string),
		files:    make(map[string][]string),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	w.unsubscribe = manager.Subscribe(w.handleLifecycle)
	for _, rec := range manager.registry.Records() {
		w.track(rec.ID(), rec.Source())
	}

	SafeGo(w.logger, w.eventLoop)
	return w, nil
}

// Watched returns the files currently watched for id.
func (w *ModuleWatcher) Watched(id string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files[id]...)
}

// Close stops watching. Pending reloads are cancelled.
func (w *ModuleWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.unsubscribe()
		close(w.done)

		w.mu.Lock()
		for _, t := range w.timers {
			t.Stop()
		}
		clear(w.timers)
		w.mu.Unlock()

		err = w.watcher.Close()
		<-w.loopDone
	})
	return err
}

func (w *ModuleWatcher) handleLifecycle(e Event) {
	switch e.Kind {
	case EventLoaded:
		w.track(e.PluginID, e.Source)
	case EventUnloaded:
		w.untrack(e.PluginID)
	}
}

// track starts watching the manifest at source and the module it points to.
func (w *ModuleWatcher) track(id, source string) {
	paths := []string{}
	if abs, err := filepath.Abs(source); err == nil {
		paths = append(paths, abs)
	}
	if module, err := ResolveModulePath(source); err == nil && (len(paths) == 0 || module != paths[0]) {
		paths = append(paths, module)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}

	for _, p := range paths {
		if _, exists := w.owners[p]; exists {
			continue
		}
		dir := filepath.Dir(p)
		if w.dirs[dir] == 0 {
			if err := w.watcher.Add(dir); err != nil {
				w.logger.Warn("Cannot watch module directory", "dir", dir, "error", err)
				continue
			}
		}
		w.dirs[dir]++
		w.owners[p] = id
		w.files[id] = append(w.files[id], p)
	}
	w.logger.Debug("Watching plugin files", "plugin", id, "files", w.files[id])
}

func (w *ModuleWatcher) untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.files[id] {
		delete(w.owners, p)
		if t, ok := w.timers[p]; ok {
			t.Stop()
			delete(w.timers, p)
		}
		dir := filepath.Dir(p)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			if err := w.watcher.Remove(dir); err != nil {
				w.logger.Debug("Cannot unwatch module directory", "dir", dir, "error", err)
			}
		}
	}
	delete(w.files, id)
}

func (w *ModuleWatcher) eventLoop() {
	defer close(w.loopDone)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.debounce(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Module watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *ModuleWatcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, watched := w.owners[path]; !watched {
		return
	}
	if t, exists := w.timers[path]; exists {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.options.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		id, watched := w.owners[path]
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		if watched {
			w.reload(id, path)
		}
	})
}

func (w *ModuleWatcher) reload(id, path string) {
	if !w.options.ReloadAll {
		info, ok := w.manager.GetRecordInfo(id)
		if !ok || !info.Capabilities.SupportsHotReload {
			w.logger.Debug("Plugin does not support hot reload", "plugin", id, "file", path)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.ReloadTimeout)
	defer cancel()

	w.logger.Info("Module changed, reloading plugin", "plugin", id, "file", path)
	if !w.manager.ReloadPlugin(ctx, id) {
		w.logger.Error("Hot reload failed", "plugin", id, "file", path)
	}
}
