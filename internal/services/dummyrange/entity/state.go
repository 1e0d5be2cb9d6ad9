package entity

import (
	"fmt"
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

// Record is the persisted form of one entity. Running DOTs are not saved.
type Record struct {
	ID        int64           `json:"id"`
	Profile   profile.Profile `json:"profile"`
	Health    int             `json:"health"`
	MaxHealth int             `json:"maxHealth"`
	Destroyed bool            `json:"destroyed"`
	Marks     []Mark          `json:"marks,omitempty"`
	Position  *Point          `json:"position,omitempty"`
	SpawnedAt time.Time       `json:"spawnedAt"`
}

// State is a full export of the store.
type State struct {
	Entities []Record `json:"entities"`
	NextID   int64    `json:"nextId"`
	Stats    Stats    `json:"stats"`
}

// Export captures every entity, the id counter and the counters.
func (s *Store) Export() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := State{
		Entities: make([]Record, 0, len(s.records)),
		NextID:   s.nextID,
		Stats:    s.stats,
	}
	for _, e := range s.listLocked() {
		state.Entities = append(state.Entities, Record{
			ID:        e.ID,
			Profile:   e.Profile,
			Health:    e.Health,
			MaxHealth: e.MaxHealth,
			Destroyed: e.Destroyed,
			Marks:     e.Marks,
			Position:  e.Position,
			SpawnedAt: e.SpawnedAt,
		})
	}
	return state
}

// Validate reports the first record that breaks an entity invariant.
func (st State) Validate() error {
	seen := make(map[int64]bool, len(st.Entities))
	for _, r := range st.Entities {
		switch {
		case r.ID <= 0:
			return fmt.Errorf("entity id %d must be positive", r.ID)
		case seen[r.ID]:
			return fmt.Errorf("duplicate entity id %d", r.ID)
		case r.MaxHealth <= 0:
			return fmt.Errorf("entity %d: max health must be positive", r.ID)
		case r.Health < 0 || r.Health > r.MaxHealth:
			return fmt.Errorf("entity %d: health %d outside [0,%d]", r.ID, r.Health, r.MaxHealth)
		case r.Destroyed != (r.Health == 0):
			return fmt.Errorf("entity %d: destroyed flag disagrees with health", r.ID)
		}
		seen[r.ID] = true
	}
	if st.Stats.TotalDamage < 0 || st.Stats.TotalHits < 0 || st.Stats.DestroyedCount < 0 {
		return fmt.Errorf("stats must not be negative")
	}
	return nil
}

// Import replaces the store contents with st. Invalid states are rejected
// and leave the store unchanged. Crack stages are recomputed; DOTs are not
// restored.
func (s *Store) Import(st State) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("import state: %w", err)
	}

	s.mu.Lock()
	for _, rec := range s.records {
		rec.dot.stop()
		rec.dot = nil
	}
	records := make(map[int64]*record, len(st.Entities))
	nextID := max(st.NextID, 1)
	for _, r := range st.Entities {
		records[r.ID] = &record{
			id:         r.ID,
			profile:    r.Profile,
			health:     r.Health,
			maxHealth:  r.MaxHealth,
			destroyed:  r.Destroyed,
			crackStage: s.cfg.CrackThresholds.Stage(r.Health, r.MaxHealth),
			marks:      trimMarks(r.Marks, s.cfg.MaxMarks),
			position:   clonePoint(r.Position),
			spawnedAt:  r.SpawnedAt,
		}
		nextID = max(nextID, r.ID+1)
	}
	s.records = records
	s.nextID = nextID
	s.stats = st.Stats
	s.unlockAndNotify(Event{Type: EventRestored})
	return nil
}

func trimMarks(marks []Mark, limit int) []Mark {
	if over := len(marks) - limit; over > 0 {
		marks = marks[over:]
	}
	if len(marks) == 0 {
		return nil
	}
	return append([]Mark(nil), marks...)
}

func clonePoint(p *Point) *Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
