package review

import (
	"fmt"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	be.Err(t, err, nil)
	be.Equal(t, s, ScopeProcess)

	s, err = ParseScope("browser")
	be.Err(t, err, nil)
	be.Equal(t, s, ScopeBrowser)

	_, err = ParseScope("tab")
	be.Err(t, err, "unknown session scope")
}

func TestRegistryProcessScopeShares(t *testing.T) {
	created := 0
	r := NewRegistry(ScopeProcess, func() *Loop {
		created++
		return newTestLoop(newFakeMailbox(), &fakeDrafter{})
	})

	a := r.Get("one")
	b := r.Get("two")
	be.True(t, a == b)
	be.Equal(t, created, 1)
	be.Equal(t, len(r.Loops()), 1)
}

func TestRegistryBrowserScopeSeparates(t *testing.T) {
	r := NewRegistry(ScopeBrowser, func() *Loop {
		return newTestLoop(newFakeMailbox(), &fakeDrafter{})
	})

	a := r.Get("one")
	b := r.Get("two")
	be.True(t, a != b)
	be.True(t, r.Get("one") == a)
	be.Equal(t, r.Len(), 2)

	a.StartMonitoring()
	be.True(t, !b.Monitoring())
}

func newBrowserRegistry(now *time.Time) *Registry {
	r := NewRegistry(ScopeBrowser, func() *Loop {
		return newTestLoop(newFakeMailbox(), &fakeDrafter{})
	})
	r.now = func() time.Time { return *now }
	return r
}

func TestRegistryDropsIdleSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r := newBrowserRegistry(&now)
	r.idle = time.Hour

	stale := r.Get("stale")
	r.Get("fresh")

	now = now.Add(50 * time.Minute)
	r.Get("fresh")
	now = now.Add(20 * time.Minute)

	loops := r.Loops()
	be.Equal(t, len(loops), 1)
	be.True(t, loops[0] != stale)
	_, ok := r.Lookup("stale")
	be.True(t, !ok)
}

func TestRegistryCapsSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r := newBrowserRegistry(&now)
	r.max = 3

	for _, k := range []string{"a", "b", "c"} {
		r.Get(k)
		now = now.Add(time.Minute)
	}
	r.Get("a")
	r.Get("d")

	be.Equal(t, r.Len(), 3)
	_, ok := r.Lookup("b")
	be.True(t, !ok)
	_, ok = r.Lookup("a")
	be.True(t, ok)
}

func TestRegistryLookupDoesNotCreate(t *testing.T) {
	now := time.Now()
	r := newBrowserRegistry(&now)

	for i := 0; i < 100; i++ {
		_, ok := r.Lookup(fmt.Sprintf("k%d", i))
		be.True(t, !ok)
	}
	be.Equal(t, r.Len(), 0)
}

func TestRegistryProcessScopeNeverEvicts(t *testing.T) {
	r := NewRegistry(ScopeProcess, func() *Loop {
		return newTestLoop(newFakeMailbox(), &fakeDrafter{})
	})
	r.idle = time.Nanosecond
	l := r.Get("")
	time.Sleep(time.Millisecond)
	be.True(t, r.Get("") == l)
	be.Equal(t, len(r.Loops()), 1)
}
