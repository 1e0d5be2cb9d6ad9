package entity

import (
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler queues callbacks until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := &manualTimer{f: f}
	m.timers = append(m.timers, timer)
	return timer
}

// fire runs the oldest live timer and reports whether one existed.
func (m *manualScheduler) fire() bool {
	m.mu.Lock()
	for len(m.timers) > 0 {
		timer := m.timers[0]
		m.timers = m.timers[1:]
		if timer.stopped {
			continue
		}
		timer.stopped = true
		m.mu.Unlock()
		timer.f()
		return true
	}
	m.mu.Unlock()
	return false
}

func newTestStore(t *testing.T) (*Store, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	now := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)
	return NewStore(Config{Scheduler: sched, Now: func() time.Time { return now }}), sched
}

func demoProfile(name string) profile.Profile {
	return profile.Profile{ID: 1, Username: name, DisplayName: name}
}

func TestDamageLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	e := store.Add(demoProfile("builderman"))
	if e.ID != 1 || e.Health != 100 || e.CrackStage != 0 || e.Destroyed {
		t.Fatalf("spawned = %+v", e)
	}
	if _, ok := store.AddMark(e.ID, Mark{At: Point{X: 1, Y: 2}, ToolID: "bat"}); !ok {
		t.Fatal("AddMark rejected")
	}

	steps := []struct {
		amount    int
		health    int
		stage     int
		destroyed bool
	}{
		{amount: 30, health: 70, stage: 0},
		{amount: 45, health: 25, stage: 2},
		{amount: 100, health: 0, stage: 3, destroyed: true},
	}
	for i, step := range steps {
		out, ok := store.ApplyDamage(e.ID, step.amount)
		if !ok {
			t.Fatalf("step %d: ApplyDamage rejected", i)
		}
		if out.Entity.Health != step.health || out.Entity.CrackStage != step.stage || out.Entity.Destroyed != step.destroyed {
			t.Fatalf("step %d: entity = %+v", i, out.Entity)
		}
		if out.Destroyed != step.destroyed {
			t.Fatalf("step %d: outcome destroyed = %v", i, out.Destroyed)
		}
	}

	if _, ok := store.ApplyDamage(e.ID, 10); ok {
		t.Fatal("damage applied to destroyed entity")
	}
	stats := store.Stats()
	if stats.TotalDamage != 175 || stats.TotalHits != 3 || stats.DestroyedCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	respawned, ok := store.Respawn(e.ID)
	if !ok || respawned.Health != 100 || respawned.CrackStage != 0 || respawned.Destroyed {
		t.Fatalf("respawned = %+v, %v", respawned, ok)
	}
	if len(respawned.Marks) != 0 || respawned.DOT != nil {
		t.Fatalf("respawned kept marks or dot: %+v", respawned)
	}

	out, ok := store.ApplyDamage(e.ID, respawned.MaxHealth)
	if !ok || !out.Destroyed || !out.Entity.Destroyed || out.Entity.Health != 0 || out.Entity.CrackStage != 3 {
		t.Fatalf("damage after respawn = %+v, %v", out, ok)
	}
	if got := store.Stats().DestroyedCount; got != 2 {
		t.Fatalf("destroyed count = %d, want 2", got)
	}
}

func TestRespawnAliveEntityChangesNothing(t *testing.T) {
	store, _ := newTestStore(t)
	e := store.Add(demoProfile("builderman"))
	before := store.Stats()

	respawned, ok := store.Respawn(e.ID)
	if !ok {
		t.Fatal("Respawn rejected")
	}
	if respawned.Health != e.Health || respawned.MaxHealth != e.MaxHealth || respawned.CrackStage != e.CrackStage ||
		respawned.Destroyed || len(respawned.Marks) != 0 || respawned.DOT != nil || !respawned.SpawnedAt.Equal(e.SpawnedAt) {
		t.Fatalf("respawned = %+v, want %+v", respawned, e)
	}
	if after := store.Stats(); after != before {
		t.Fatalf("stats = %+v, want %+v", after, before)
	}
	if got, _ := store.Get(e.ID); got.Health != 100 || store.Len() != 1 {
		t.Fatalf("entity after respawn = %+v", got)
	}
}

func TestUnknownEntityIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	if _, ok := store.ApplyDamage(99, 10); ok {
		t.Fatal("ApplyDamage on unknown id reported ok")
	}
	if store.ApplyDOT(99, DOT{Damage: 1, TickCount: 1}) {
		t.Fatal("ApplyDOT on unknown id reported ok")
	}
	if _, ok := store.Respawn(99); ok {
		t.Fatal("Respawn on unknown id reported ok")
	}
	if store.Remove(99) {
		t.Fatal("Remove on unknown id reported ok")
	}
	if stats := store.Stats(); stats != (Stats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}

func TestDOTTicksUntilExhausted(t *testing.T) {
	store, sched := newTestStore(t)
	e := store.Add(demoProfile("a"))

	var ended int
	store.Subscribe(func(ev Event) {
		if ev.Type == EventDOTEnded {
			ended++
		}
	})

	if !store.ApplyDOT(e.ID, DOT{Damage: 5, TickCount: 3}) {
		t.Fatal("ApplyDOT rejected")
	}
	got, _ := store.Get(e.ID)
	if got.DOT == nil || got.DOT.TicksRemaining != 3 || got.DOT.TickInterval != DefaultDOTTickInterval {
		t.Fatalf("dot = %+v", got.DOT)
	}
	for sched.fire() {
	}
	got, _ = store.Get(e.ID)
	if got.Health != 85 || got.DOT != nil {
		t.Fatalf("after ticks = %+v", got)
	}
	if ended != 1 {
		t.Fatalf("dot ended events = %d, want 1", ended)
	}
	if hits := store.Stats().TotalHits; hits != 3 {
		t.Fatalf("hits = %d, want 3", hits)
	}
}

func TestDOTDoesNotStack(t *testing.T) {
	store, sched := newTestStore(t)
	e := store.Add(demoProfile("a"))

	store.ApplyDOT(e.ID, DOT{Damage: 5, TickCount: 3})
	stale := sched.timers[0]
	store.ApplyDOT(e.ID, DOT{Damage: 2, TickCount: 2})
	if !stale.stopped {
		t.Fatal("replaced DOT timer was not stopped")
	}

	// A tick that raced the replacement must not apply.
	stale.f()
	got, _ := store.Get(e.ID)
	if got.Health != 100 {
		t.Fatalf("stale tick applied damage: health = %d", got.Health)
	}

	for sched.fire() {
	}
	got, _ = store.Get(e.ID)
	if got.Health != 96 {
		t.Fatalf("health = %d, want 96", got.Health)
	}
}

func TestDOTEndsOnDestruction(t *testing.T) {
	store, sched := newTestStore(t)
	e := store.Add(demoProfile("a"))
	store.ApplyDamage(e.ID, 90)

	store.ApplyDOT(e.ID, DOT{Damage: 5, TickCount: 5})
	fired := 0
	for sched.fire() {
		fired++
	}
	got, _ := store.Get(e.ID)
	if !got.Destroyed || got.Health != 0 || got.DOT != nil {
		t.Fatalf("entity = %+v", got)
	}
	if fired != 2 {
		t.Fatalf("ticks fired = %d, want 2", fired)
	}
	if store.ApplyDOT(e.ID, DOT{Damage: 5, TickCount: 1}) {
		t.Fatal("ApplyDOT on destroyed entity reported ok")
	}
}

func TestRespawnRemoveAndClearCancelDOT(t *testing.T) {
	store, sched := newTestStore(t)
	a := store.Add(demoProfile("a"))
	b := store.Add(demoProfile("b"))
	c := store.Add(demoProfile("c"))
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		store.ApplyDOT(id, DOT{Damage: 1, TickCount: 10})
	}

	store.Respawn(a.ID)
	store.Remove(b.ID)
	for _, timer := range sched.timers[:2] {
		if !timer.stopped {
			t.Fatal("respawn/remove left a DOT timer running")
		}
	}
	if _, ok := store.Get(b.ID); ok {
		t.Fatal("removed entity still present")
	}

	store.ApplyDamage(c.ID, 10)
	store.Clear()
	if sched.fire() {
		t.Fatal("clear left a DOT timer running")
	}
	if store.Len() != 0 || store.Stats() != (Stats{}) {
		t.Fatalf("after clear len = %d stats = %+v", store.Len(), store.Stats())
	}
	if next := store.Add(demoProfile("d")); next.ID != 4 {
		t.Fatalf("id after clear = %d, want 4", next.ID)
	}
}

func TestRespawnAll(t *testing.T) {
	store, _ := newTestStore(t)
	a := store.Add(demoProfile("a"))
	b := store.Add(demoProfile("b"))
	store.ApplyDamage(a.ID, 100)
	store.ApplyDamage(b.ID, 50)

	if n := store.RespawnAll(); n != 2 {
		t.Fatalf("RespawnAll() = %d, want 2", n)
	}
	for _, e := range store.List() {
		if e.Health != e.MaxHealth || e.Destroyed || e.CrackStage != 0 {
			t.Fatalf("entity = %+v", e)
		}
	}
}

func TestMarksAreBounded(t *testing.T) {
	sched := &manualScheduler{}
	store := NewStore(Config{Scheduler: sched, MaxMarks: 3})
	e := store.Add(demoProfile("a"))
	for i := range 5 {
		store.AddMark(e.ID, Mark{At: Point{X: float64(i)}, ToolID: "pistol"})
	}
	got, _ := store.Get(e.ID)
	if len(got.Marks) != 3 || got.Marks[0].At.X != 2 || got.Marks[2].At.X != 4 {
		t.Fatalf("marks = %+v", got.Marks)
	}
	if got.Marks[0].MadeAt.IsZero() {
		t.Fatal("mark time not stamped")
	}
}

func TestPosition(t *testing.T) {
	store, _ := newTestStore(t)
	e := store.Add(demoProfile("a"))
	moved, ok := store.SetPosition(e.ID, Point{X: 3, Y: 4})
	if !ok || moved.Position == nil || moved.Position.Dist(Point{}) != 5 {
		t.Fatalf("moved = %+v", moved)
	}
}

func TestObserversRunOutsideLock(t *testing.T) {
	store, _ := newTestStore(t)
	var seen []EventType
	store.Subscribe(func(ev Event) {
		// Reading the store from an observer must not deadlock.
		_ = store.Stats()
		seen = append(seen, ev.Type)
	})
	e := store.Add(demoProfile("a"))
	store.ApplyDamage(e.ID, 100)

	want := []EventType{EventSpawned, EventDamaged, EventDestroyed}
	if len(seen) != len(want) {
		t.Fatalf("events = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("events = %v, want %v", seen, want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	store, _ := newTestStore(t)
	calls := 0
	cancel := store.Subscribe(func(Event) { calls++ })
	store.Add(demoProfile("a"))
	cancel()
	store.Add(demoProfile("b"))
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestConcurrentDamageKeepsInvariants(t *testing.T) {
	store := NewStore(Config{})
	e := store.Add(demoProfile("a"))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.ApplyDamage(e.ID, 3)
		}()
	}
	wg.Wait()

	got, _ := store.Get(e.ID)
	if got.Health != 0 || !got.Destroyed {
		t.Fatalf("entity = %+v", got)
	}
	stats := store.Stats()
	// Hits stop counting once the entity is destroyed at the 34th hit.
	if stats.TotalHits != 34 || stats.DestroyedCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
