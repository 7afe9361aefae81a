// events_test.go: tests for the synchronous event bus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliveryOrder(t *testing.T) {
	bus := NewEventBus(nil)
	var got []string
	bus.Subscribe(func(e Event) { got = append(got, "first:"+e.PluginID) })
	bus.Subscribe(func(e Event) { got = append(got, "second:"+e.PluginID) })

	bus.Publish(newEvent(EventLoaded, "a", "/a", ""))
	bus.Publish(newEvent(EventUnloaded, "a", "/a", ""))

	assert.Equal(t, []string{"first:a", "second:a", "first:a", "second:a"}, got)
}

func TestEventBus_NoReplay(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Publish(newEvent(EventLoaded, "early", "", ""))

	rec := &eventRecorder{}
	bus.Subscribe(rec.handle)
	assert.Empty(t, rec.Events())
}

func TestEventBus_UnsubscribeIdempotent(t *testing.T) {
	bus := NewEventBus(nil)
	rec := &eventRecorder{}
	other := &eventRecorder{}
	unsubscribe := bus.Subscribe(rec.handle)
	bus.Subscribe(other.handle)
	require.Equal(t, 2, bus.Len())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.Len())

	bus.Publish(newEvent(EventLoaded, "a", "", ""))
	assert.Empty(t, rec.Events())
	assert.Len(t, other.Events(), 1)
}

func TestEventBus_NilHandler(t *testing.T) {
	bus := NewEventBus(nil)
	unsubscribe := bus.Subscribe(nil)
	unsubscribe()
	assert.Zero(t, bus.Len())
}

func TestEventBus_PanicIsolation(t *testing.T) {
	logger := NewTestLogger()
	bus := NewEventBus(logger)
	rec := &eventRecorder{}
	bus.Subscribe(func(Event) { panic("handler bug") })
	bus.Subscribe(rec.handle)

	assert.NotPanics(t, func() { bus.Publish(newEvent(EventError, "a", "", "boom")) })
	assert.Len(t, rec.Events(), 1)
	assert.True(t, logger.HasMessage("ERROR", "Panic recovered"))
}

func TestEventBus_SubscribeFromHandler(t *testing.T) {
	bus := NewEventBus(nil)
	late := &eventRecorder{}
	subscribed := false
	bus.Subscribe(func(Event) {
		if !subscribed {
			subscribed = true
			bus.Subscribe(late.handle)
		}
	})

	bus.Publish(newEvent(EventLoaded, "a", "", ""))
	assert.Empty(t, late.Events(), "a handler added during delivery only sees later events")

	bus.Publish(newEvent(EventLoaded, "b", "", ""))
	require.Len(t, late.Events(), 1)
	assert.Equal(t, "b", late.Events()[0].PluginID)
}

func TestEventBus_UnsubscribeFromHandler(t *testing.T) {
	bus := NewEventBus(nil)
	calls := 0
	var unsubscribe func()
	unsubscribe = bus.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	bus.Publish(newEvent(EventLoaded, "a", "", ""))
	bus.Publish(newEvent(EventLoaded, "b", "", ""))
	assert.Equal(t, 1, calls)
}

func TestNewEvent(t *testing.T) {
	e := newEvent(EventLoaded, "a", "/a", "detail")
	f := newEvent(EventLoaded, "a", "/a", "detail")

	assert.NotEmpty(t, e.ID)
	assert.NotEqual(t, e.ID, f.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "detail", e.Detail)
}
