package combat

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/random"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return true }

// heldScheduler never fires; DOT ticks are exercised in the entity package.
type heldScheduler struct{ scheduled int }

func (h *heldScheduler) AfterFunc(time.Duration, func()) entity.Timer {
	h.scheduled++
	return stoppedTimer{}
}

func testTools(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]Tool{
		{ID: "poke", Category: CategoryMelee, BaseDamage: 10, CriticalMultiplier: 1},
		{ID: "crit", Category: CategoryRanged, BaseDamage: 15, CriticalChance: 1, CriticalMultiplier: 1.5, LeavesMark: true},
		{ID: "burn", Category: CategoryElemental, BaseDamage: 2, CriticalMultiplier: 1,
			DOT: &DOTSpec{Damage: 3, Duration: time.Second, TickCount: 4}},
		{ID: "bomb", Category: CategoryExplosive, BaseDamage: 40, CriticalMultiplier: 1,
			IsAreaEffect: true, AreaRadius: 100, SplashDamage: 20},
		{ID: "nuke", Category: CategoryExplosive, BaseDamage: 30, CriticalChance: 1, CriticalMultiplier: 2,
			IsAreaEffect: true, AreaRadius: 50, SplashDamage: 10, SplashRollsCritical: true, SplashIncludesPrimary: true},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *entity.Store, *heldScheduler) {
	t.Helper()
	sched := &heldScheduler{}
	store := entity.NewStore(entity.Config{Scheduler: sched})
	return NewOrchestrator(store, testTools(t), random.NewRand(42)), store, sched
}

func spawnAt(store *entity.Store, name string, x, y float64) entity.Entity {
	e := store.Add(profile.Profile{Username: name, DisplayName: name})
	e, _ = store.SetPosition(e.ID, entity.Point{X: x, Y: y})
	return e
}

func TestAttackUsesSelectedTool(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	e := store.Add(profile.Profile{Username: "a"})

	res, ok := o.Attack(e.ID, Attack{})
	if !ok || res.Tool.ID != "poke" || res.Primary.Damage != 10 || res.Primary.Critical {
		t.Fatalf("result = %+v, %v", res, ok)
	}
	if _, err := o.SelectTool("crit"); err != nil {
		t.Fatalf("SelectTool() error = %v", err)
	}
	res, _ = o.Attack(e.ID, Attack{})
	if res.Tool.ID != "crit" || res.Primary.Damage != 22 || !res.Primary.Critical {
		t.Fatalf("critical result = %+v", res.Primary)
	}
	if got, _ := store.Get(e.ID); got.Health != 68 {
		t.Fatalf("health = %d, want 68", got.Health)
	}
}

func TestSelectUnknownTool(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	if _, err := o.SelectTool("laser"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("SelectTool() error = %v, want NOT_FOUND", err)
	}
	if o.SelectedTool().ID != "poke" {
		t.Fatalf("selected = %q, want poke", o.SelectedTool().ID)
	}
}

func TestAttackNoops(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	e := store.Add(profile.Profile{Username: "a"})

	if _, ok := o.Attack(99, Attack{}); ok {
		t.Fatal("attack on unknown entity reported ok")
	}
	if _, ok := o.Attack(e.ID, Attack{ToolID: "laser"}); ok {
		t.Fatal("attack with unknown tool reported ok")
	}
	store.ApplyDamage(e.ID, 100)
	before := store.Stats()
	if _, ok := o.Attack(e.ID, Attack{}); ok {
		t.Fatal("attack on destroyed entity reported ok")
	}
	if store.Stats() != before {
		t.Fatal("no-op attack changed stats")
	}
}

func TestAttackAppliesDOT(t *testing.T) {
	o, store, sched := newTestOrchestrator(t)
	e := store.Add(profile.Profile{Username: "a"})

	res, ok := o.Attack(e.ID, Attack{ToolID: "burn"})
	if !ok || !res.DOTApplied {
		t.Fatalf("result = %+v", res)
	}
	got, _ := store.Get(e.ID)
	if got.DOT == nil || got.DOT.Damage != 3 || got.DOT.TicksRemaining != 4 || got.DOT.TickInterval != 250*time.Millisecond {
		t.Fatalf("dot = %+v", got.DOT)
	}
	if sched.scheduled != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.scheduled)
	}
}

func TestAttackLeavesMarkAtImpact(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	e := store.Add(profile.Profile{Username: "a"})

	res, _ := o.Attack(e.ID, Attack{ToolID: "crit", Impact: &entity.Point{X: 4, Y: 5}})
	if res.Mark == nil || res.Mark.At != (entity.Point{X: 4, Y: 5}) || res.Mark.ToolID != "crit" {
		t.Fatalf("mark = %+v", res.Mark)
	}
	if res, _ := o.Attack(e.ID, Attack{ToolID: "poke"}); res.Mark != nil {
		t.Fatal("non-marking tool left a mark")
	}
}

func TestAreaAttackSplash(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	primary := spawnAt(store, "primary", 0, 0)
	near := spawnAt(store, "near", 60, 80)
	far := spawnAt(store, "far", 300, 0)
	unplaced := store.Add(profile.Profile{Username: "unplaced"})
	dead := spawnAt(store, "dead", 10, 0)
	store.ApplyDamage(dead.ID, 100)

	res, ok := o.Attack(primary.ID, Attack{ToolID: "bomb"})
	if !ok {
		t.Fatal("attack rejected")
	}
	if len(res.Splash) != 1 || res.Splash[0].EntityID != near.ID || res.Splash[0].Damage != 20 {
		t.Fatalf("splash = %+v", res.Splash)
	}
	want := map[int64]int{primary.ID: 60, near.ID: 80, far.ID: 100, unplaced.ID: 100}
	for id, health := range want {
		if got, _ := store.Get(id); got.Health != health {
			t.Errorf("entity %d health = %d, want %d", id, got.Health, health)
		}
	}
}

func TestAreaAttackIncludesPrimaryAndRollsSplash(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	primary := spawnAt(store, "primary", 0, 0)
	near := spawnAt(store, "near", 0, 50)

	res, _ := o.Attack(primary.ID, Attack{ToolID: "nuke", Impact: &entity.Point{X: 0, Y: 10}})
	if res.Primary.Damage != 60 {
		t.Fatalf("primary damage = %d, want 60", res.Primary.Damage)
	}
	if len(res.Splash) != 2 {
		t.Fatalf("splash = %+v, want primary and near", res.Splash)
	}
	for _, hit := range res.Splash {
		if hit.Damage != 20 || !hit.Critical {
			t.Fatalf("splash hit = %+v", hit)
		}
	}
	if got, _ := store.Get(primary.ID); got.Health != 20 {
		t.Fatalf("primary health = %d, want 20", got.Health)
	}
	if got, _ := store.Get(near.ID); got.Health != 80 {
		t.Fatalf("near health = %d, want 80", got.Health)
	}
}

func TestCriticalRateFollowsChance(t *testing.T) {
	reg, err := NewRegistry([]Tool{{ID: "coin", Category: CategoryMelee, BaseDamage: 1, CriticalChance: 0.5, CriticalMultiplier: 2}})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	o := NewOrchestrator(entity.NewStore(entity.Config{}), reg, random.NewRand(7))
	tool, _ := reg.Get("coin")
	crits := 0
	const n = 10000
	for range n {
		if _, crit := o.roll(tool.BaseDamage, tool); crit {
			crits++
		}
	}
	if crits < 4500 || crits > 5500 {
		t.Fatalf("crits = %d of %d, want about half", crits, n)
	}
}
