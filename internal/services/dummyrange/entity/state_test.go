package entity

import "testing"

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestStore(t)
	a := src.Add(demoProfile("a"))
	b := src.Add(demoProfile("b"))
	src.ApplyDamage(a.ID, 55)
	src.ApplyDamage(b.ID, 100)
	src.SetPosition(a.ID, Point{X: 1, Y: 2})
	src.AddMark(a.ID, Mark{At: Point{X: 1, Y: 2}, ToolID: "pistol"})
	src.ApplyDOT(a.ID, DOT{Damage: 1, TickCount: 3})

	state := src.Export()
	if state.NextID != 3 || len(state.Entities) != 2 {
		t.Fatalf("state = %+v", state)
	}

	dst, _ := newTestStore(t)
	if err := dst.Import(state); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	got, ok := dst.Get(a.ID)
	if !ok || got.Health != 45 || got.CrackStage != 1 || got.DOT != nil || got.Position == nil || len(got.Marks) != 1 {
		t.Fatalf("imported a = %+v", got)
	}
	if gotB, _ := dst.Get(b.ID); !gotB.Destroyed || gotB.CrackStage != 3 {
		t.Fatalf("imported b = %+v", gotB)
	}
	if dst.Stats() != src.Stats() {
		t.Fatalf("stats = %+v, want %+v", dst.Stats(), src.Stats())
	}
	if next := dst.Add(demoProfile("c")); next.ID != 3 {
		t.Fatalf("next id = %d, want 3", next.ID)
	}
}

func TestImportRejectsInvalidState(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{name: "health above max", state: State{Entities: []Record{{ID: 1, Health: 120, MaxHealth: 100}}}},
		{name: "destroyed with health", state: State{Entities: []Record{{ID: 1, Health: 10, MaxHealth: 100, Destroyed: true}}}},
		{name: "alive at zero", state: State{Entities: []Record{{ID: 1, Health: 0, MaxHealth: 100}}}},
		{name: "duplicate id", state: State{Entities: []Record{{ID: 1, Health: 1, MaxHealth: 1}, {ID: 1, Health: 1, MaxHealth: 1}}}},
		{name: "non-positive id", state: State{Entities: []Record{{ID: 0, Health: 1, MaxHealth: 1}}}},
		{name: "negative stats", state: State{Stats: Stats{TotalHits: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			kept := store.Add(demoProfile("kept"))
			if err := store.Import(tt.state); err == nil {
				t.Fatal("Import() expected error")
			}
			if _, ok := store.Get(kept.ID); !ok {
				t.Fatal("failed import changed the store")
			}
		})
	}
}

func TestImportRaisesNextIDPastRecords(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Import(State{NextID: 1, Entities: []Record{{ID: 7, Health: 50, MaxHealth: 100}}})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if e := store.Add(demoProfile("x")); e.ID != 8 {
		t.Fatalf("id = %d, want 8", e.ID)
	}
}
