// registry_test.go: tests for the plugin registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func recordFor(id, source string) *PluginRecord {
	rec := newPluginRecord(source)
	rec.attach(&fakeBoundary{plugin: newFakePlugin(id), source: source})
	return rec
}

func TestRegistry_InsertGetRemove(t *testing.T) {
	r := NewRegistry()
	rec := recordFor("a", "/a")

	require.True(t, r.TryInsert(rec))
	assert.False(t, r.TryInsert(recordFor("a", "/other")), "second insert with the same id must fail")

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, rec, got)
	assert.Equal(t, "/a", got.Source())
	assert.True(t, r.Contains("a"))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove("a", rec))
	assert.False(t, r.Contains("a"))
	assert.False(t, r.Remove("a", rec))
}

func TestRegistry_RemoveComparesRecord(t *testing.T) {
	r := NewRegistry()
	old := recordFor("a", "/a")
	require.True(t, r.TryInsert(old))
	require.True(t, r.Remove("a", old))

	fresh := recordFor("a", "/a")
	require.True(t, r.TryInsert(fresh))

	assert.False(t, r.Remove("a", old), "a stale record must not evict its replacement")
	got, _ := r.Get("a")
	assert.Same(t, fresh, got)
}

func TestRegistry_SnapshotSortedCopy(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		require.True(t, r.TryInsert(recordFor(id, "/"+id)))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, "c", snap[2].ID)

	snap[0].ID = "mutated"
	assert.Equal(t, "a", r.Snapshot()[0].ID)

	assert.Len(t, r.Records(), 3)
	assert.Empty(t, NewRegistry().Snapshot())
}

func TestRegistry_ConcurrentTryInsert(t *testing.T) {
	r := NewRegistry()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryInsert(recordFor("same", fmt.Sprintf("/%d", i))) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.Equal(t, 1, r.Len())
}

// TestRegistry_MatchesModel checks TryInsert and Remove against a map model.
func TestRegistry_MatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := NewRegistry()
		model := map[string]*PluginRecord{}

		for i, n := 0, rapid.IntRange(0, 50).Draw(rt, "ops"); i < n; i++ {
			id := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(rt, "id")
			if rapid.Bool().Draw(rt, "insert") {
				rec := recordFor(id, "/"+id)
				_, exists := model[id]
				if r.TryInsert(rec) == exists {
					rt.Fatalf("TryInsert(%s) disagreed with model (exists=%v)", id, exists)
				}
				if !exists {
					model[id] = rec
				}
			} else {
				rec, exists := model[id]
				if exists != r.Remove(id, rec) {
					rt.Fatalf("Remove(%s) disagreed with model", id)
				}
				delete(model, id)
			}

			var want []string
			for id := range model {
				want = append(want, id)
			}
			sort.Strings(want)
			snap := r.Snapshot()
			if len(snap) != len(want) {
				rt.Fatalf("snapshot %v, model %v", snap, want)
			}
			for i := range want {
				if snap[i].ID != want[i] {
					rt.Fatalf("snapshot %v, model %v", snap, want)
				}
			}
		}
	})
}

func TestPluginRecord_Transitions(t *testing.T) {
	rec := recordFor("a", "/a")
	assert.Equal(t, StateDiscovered, rec.State())

	for _, s := range []LifecycleState{StateLoading, StateValidating, StateInitializing, StateRunning} {
		require.NoError(t, rec.transition(s))
	}
	assert.False(t, rec.info().LoadedAt.IsZero())

	err := rec.transition(StateLoading)
	assert.True(t, HasErrorCode(err, ErrCodeInvalidTransition))

	assert.True(t, rec.claim())
	assert.False(t, rec.claim(), "only one claim may succeed")
	assert.Equal(t, StateStopping, rec.State())
}

func TestPluginRecord_CapabilitiesAreCopied(t *testing.T) {
	rec := recordFor("a", "/a")
	caps := PluginCapabilities{Commands: []string{"x"}}
	rec.setCapabilities(caps)
	caps.Commands[0] = "changed"

	assert.Equal(t, []string{"x"}, rec.Capabilities().Commands)
	got := rec.Capabilities()
	got.Commands[0] = "changed"
	assert.Equal(t, []string{"x"}, rec.info().Capabilities.Commands)
}
