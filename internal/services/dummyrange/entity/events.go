package entity

// EventType names a state change.
type EventType string

const (
	EventSpawned    EventType = "entity.spawned"
	EventDamaged    EventType = "entity.damaged"
	EventDestroyed  EventType = "entity.destroyed"
	EventDOTStarted EventType = "entity.dot_started"
	EventDOTEnded   EventType = "entity.dot_ended"
	EventRespawned  EventType = "entity.respawned"
	EventMoved      EventType = "entity.moved"
	EventMarked     EventType = "entity.marked"
	EventRemoved    EventType = "entity.removed"
	EventCleared    EventType = "range.cleared"
	EventRestored   EventType = "range.restored"
)

// Event describes a completed mutation. Entity is a snapshot taken inside
// the mutation; it is nil for range-wide events and removals.
type Event struct {
	Type     EventType `json:"type"`
	EntityID int64     `json:"entityId,omitempty"`
	Entity   *Entity   `json:"entity,omitempty"`
	Amount   int       `json:"amount,omitempty"`
}

// Observer receives events after the store lock is released.
type Observer func(Event)

func entityEvent(t EventType, r *record) Event {
	snap := r.snapshot()
	return Event{Type: t, EntityID: r.id, Entity: &snap}
}
