package entity

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

// Defaults for Config.
const (
	DefaultMaxHealth       = 100
	DefaultDOTTickInterval = 500 * time.Millisecond
	DefaultMaxMarks        = 10
)

// Config tunes a Store.
type Config struct {
	MaxHealth       int
	CrackThresholds CrackThresholds
	DOTTickInterval time.Duration
	MaxMarks        int
	Scheduler       Scheduler
	Now             func() time.Time
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxHealth:       DefaultMaxHealth,
		CrackThresholds: DefaultCrackThresholds,
		DOTTickInterval: DefaultDOTTickInterval,
		MaxMarks:        DefaultMaxMarks,
	}
}

// Store owns every entity on the range. Each mutation, DOT ticks included,
// runs as one critical section; observers run after it completes. Unknown
// ids are reported through the ok result, never as errors.
type Store struct {
	cfg Config

	mu        sync.Mutex
	records   map[int64]*record
	nextID    int64
	stats     Stats
	observers map[int]Observer
	observerN int
}

// NewStore builds an empty store; zero config fields take defaults.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxHealth <= 0 {
		cfg.MaxHealth = def.MaxHealth
	}
	if len(cfg.CrackThresholds) == 0 {
		cfg.CrackThresholds = def.CrackThresholds
	}
	if cfg.DOTTickInterval <= 0 {
		cfg.DOTTickInterval = def.DOTTickInterval
	}
	if cfg.MaxMarks <= 0 {
		cfg.MaxMarks = def.MaxMarks
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = clockScheduler{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		cfg:       cfg,
		records:   make(map[int64]*record),
		nextID:    1,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for every future event and returns its cancel func.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observerN++
	key := s.observerN
	s.observers[key] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, key)
	}
}

// unlockAndNotify releases the lock and then delivers events.
func (s *Store) unlockAndNotify(events ...Event) {
	if len(events) == 0 || len(s.observers) == 0 {
		s.mu.Unlock()
		return
	}
	keys := make([]int, 0, len(s.observers))
	for k := range s.observers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	observers := make([]Observer, 0, len(keys))
	for _, k := range keys {
		observers = append(observers, s.observers[k])
	}
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

// Add spawns a full-health entity for p.
func (s *Store) Add(p profile.Profile) Entity {
	s.mu.Lock()
	rec := &record{
		id:        s.nextID,
		profile:   p,
		health:    s.cfg.MaxHealth,
		maxHealth: s.cfg.MaxHealth,
		spawnedAt: s.cfg.Now(),
	}
	s.nextID++
	s.records[rec.id] = rec
	ev := entityEvent(EventSpawned, rec)
	s.unlockAndNotify(ev)
	return *ev.Entity
}

// Get returns a snapshot of id.
func (s *Store) Get(id int64) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return Entity{}, false
	}
	return rec.snapshot(), true
}

// List returns every entity ordered by id.
func (s *Store) List() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []Entity {
	out := make([]Entity, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.snapshot())
	}
	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len reports the number of entities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Stats returns the range counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// MaxCrackStage is the crack stage of a destroyed entity.
func (s *Store) MaxCrackStage() int {
	return s.cfg.CrackThresholds.MaxStage()
}

// ApplyDamage removes amount health from id. Absent or destroyed entities
// are left untouched and report ok == false. Every accepted call counts as a
// hit and adds the raw amount to the damage total.
func (s *Store) ApplyDamage(id int64, amount int) (DamageOutcome, bool) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.destroyed {
		s.mu.Unlock()
		return DamageOutcome{}, false
	}
	outcome, events := s.damageLocked(rec, amount)
	s.unlockAndNotify(events...)
	return outcome, true
}

func (s *Store) damageLocked(rec *record, amount int) (DamageOutcome, []Event) {
	amount = max(amount, 0)
	before := rec.health
	rec.health = max(rec.health-amount, 0)
	rec.crackStage = s.cfg.CrackThresholds.Stage(rec.health, rec.maxHealth)
	s.stats.TotalDamage += int64(amount)
	s.stats.TotalHits++

	outcome := DamageOutcome{Dealt: before - rec.health}
	events := []Event{}
	if rec.health == 0 {
		rec.destroyed = true
		outcome.Destroyed = true
		s.stats.DestroyedCount++
		if rec.dot != nil {
			rec.dot.stop()
			rec.dot = nil
			events = append(events, Event{Type: EventDOTEnded, EntityID: rec.id})
		}
	}
	outcome.Entity = rec.snapshot()
	damaged := Event{Type: EventDamaged, EntityID: rec.id, Entity: &outcome.Entity, Amount: outcome.Dealt}
	events = append([]Event{damaged}, events...)
	if outcome.Destroyed {
		events = append(events, Event{Type: EventDestroyed, EntityID: rec.id, Entity: &outcome.Entity})
	}
	return outcome, events
}

// ApplyDOT starts a damage-over-time effect on id, replacing any running
// one. Effects never stack. It reports false when the entity is absent or
// destroyed, or when dot deals no damage.
func (s *Store) ApplyDOT(id int64, dot DOT) bool {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	var events []Event
	if rec.dot != nil {
		rec.dot.stop()
		rec.dot = nil
		events = append(events, Event{Type: EventDOTEnded, EntityID: id})
	}
	if rec.destroyed || dot.Damage <= 0 || dot.TickCount <= 0 {
		s.unlockAndNotify(events...)
		return false
	}

	interval := dot.TickInterval
	if interval <= 0 {
		interval = s.cfg.DOTTickInterval
	}
	effect := &dotEffect{damage: dot.Damage, remaining: dot.TickCount, interval: interval}
	rec.dot = effect
	effect.timer = s.cfg.Scheduler.AfterFunc(interval, func() { s.tick(id, effect) })
	events = append(events, entityEvent(EventDOTStarted, rec))
	s.unlockAndNotify(events...)
	return true
}

func (s *Store) tick(id int64, effect *dotEffect) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.dot != effect || rec.destroyed {
		s.mu.Unlock()
		return
	}
	outcome, events := s.damageLocked(rec, effect.damage)
	if !outcome.Destroyed {
		effect.remaining--
		if effect.remaining <= 0 {
			rec.dot = nil
			events = append(events, Event{Type: EventDOTEnded, EntityID: id})
		} else {
			effect.timer = s.cfg.Scheduler.AfterFunc(effect.interval, func() { s.tick(id, effect) })
		}
	}
	s.unlockAndNotify(events...)
}

// Respawn restores id to full health, clearing cracks, marks and any DOT.
func (s *Store) Respawn(id int64) (Entity, bool) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return Entity{}, false
	}
	s.respawnLocked(rec)
	ev := entityEvent(EventRespawned, rec)
	s.unlockAndNotify(ev)
	return *ev.Entity, true
}

// RespawnAll restores every entity and returns how many were restored.
func (s *Store) RespawnAll() int {
	s.mu.Lock()
	events := make([]Event, 0, len(s.records))
	for _, rec := range s.records {
		s.respawnLocked(rec)
		events = append(events, entityEvent(EventRespawned, rec))
	}
	slices.SortFunc(events, func(a, b Event) int { return cmp.Compare(a.EntityID, b.EntityID) })
	s.unlockAndNotify(events...)
	return len(events)
}

func (s *Store) respawnLocked(rec *record) {
	rec.dot.stop()
	rec.dot = nil
	rec.health = rec.maxHealth
	rec.destroyed = false
	rec.crackStage = 0
	rec.marks = nil
	rec.spawnedAt = s.cfg.Now()
}

// SetPosition records where id sits on the range.
func (s *Store) SetPosition(id int64, at Point) (Entity, bool) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return Entity{}, false
	}
	pos := at
	rec.position = &pos
	ev := entityEvent(EventMoved, rec)
	s.unlockAndNotify(ev)
	return *ev.Entity, true
}

// AddMark appends a mark to a live entity, evicting the oldest beyond the
// configured cap.
func (s *Store) AddMark(id int64, mark Mark) (Entity, bool) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok || rec.destroyed {
		s.mu.Unlock()
		return Entity{}, false
	}
	if mark.MadeAt.IsZero() {
		mark.MadeAt = s.cfg.Now()
	}
	rec.marks = append(rec.marks, mark)
	if over := len(rec.marks) - s.cfg.MaxMarks; over > 0 {
		rec.marks = slices.Delete(rec.marks, 0, over)
	}
	ev := entityEvent(EventMarked, rec)
	s.unlockAndNotify(ev)
	return *ev.Entity, true
}

// Remove deletes id, cancelling its DOT.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	rec.dot.stop()
	rec.dot = nil
	delete(s.records, id)
	s.unlockAndNotify(Event{Type: EventRemoved, EntityID: id})
	return true
}

// Clear removes every entity and resets the counters. Ids keep increasing.
func (s *Store) Clear() {
	s.mu.Lock()
	for _, rec := range s.records {
		rec.dot.stop()
		rec.dot = nil
	}
	clear(s.records)
	s.stats = Stats{}
	s.unlockAndNotify(Event{Type: EventCleared})
}
