// events.go: synchronous lifecycle event fan-out
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// EventKind identifies what happened to a plugin.
type EventKind int

const (
	EventLoaded EventKind = iota + 1
	EventUnloaded
	EventError
)

// String implements fmt.Stringer for EventKind.
func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification. PluginID falls back to the module
// source when a load fails before the id is known.
type Event struct {
	ID        string
	Kind      EventKind
	PluginID  string
	Source    string
	Timestamp time.Time
	Detail    string

	// Duration is the load time for EventLoaded.
	Duration time.Duration

	// Err is set for EventError.
	Err error
}

func newEvent(kind EventKind, pluginID, source, detail string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		PluginID:  pluginID,
		Source:    source,
		Timestamp: timecache.CachedTime(),
		Detail:    detail,
	}
}

// EventHandler receives events. It runs on the goroutine that emitted the
// event.
type EventHandler func(Event)

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus delivers events synchronously to every subscriber, in
// subscription order. There is no buffering and no replay: a subscriber
// only sees events emitted after Subscribe returns. A panicking handler is
// logged and skipped; the remaining handlers still run.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger Logger
}

// NewEventBus creates an event bus.
func NewEventBus(logger Logger) *EventBus {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &EventBus{logger: logger}
}

// Subscribe registers handler and returns a function that removes it.
// The returned function may be called any number of times.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			subs := make([]subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to the current subscribers and returns once all of
// them have run. Handlers may subscribe or unsubscribe from inside a
// callback; the change applies to the next Publish.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.handler, e)
	}
}

func (b *EventBus) deliver(handler EventHandler, e Event) {
	defer withStackRecover(b.logger, "component", "event-bus", "event", e.Kind.String(), "plugin", e.PluginID)()
	handler(e)
}

// Len returns the number of subscribers.
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
