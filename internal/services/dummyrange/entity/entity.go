// Package entity holds the range's damageable targets: health, crack
// stages, destruction, respawn, and damage over time.
package entity

import (
	"math"
	"slices"
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

// Point is a position on the range.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Mark is a lasting impact decal left by some tools.
type Mark struct {
	At     Point     `json:"at"`
	ToolID string    `json:"toolId"`
	MadeAt time.Time `json:"madeAt"`
}

// DOT requests a damage-over-time effect.
type DOT struct {
	Damage    int
	TickCount int
	// TickInterval falls back to the store's configured interval when zero.
	TickInterval time.Duration
}

// DOTState is the visible state of a running effect.
type DOTState struct {
	Damage         int           `json:"damage"`
	TicksRemaining int           `json:"ticksRemaining"`
	TickInterval   time.Duration `json:"tickIntervalNs"`
}

// Entity is a read-only snapshot of one target.
type Entity struct {
	ID          int64           `json:"id"`
	Profile     profile.Profile `json:"profile"`
	Health      int             `json:"health"`
	MaxHealth   int             `json:"maxHealth"`
	Destroyed   bool            `json:"destroyed"`
	CrackStage  int             `json:"crackStage"`
	HealthLevel HealthLevel     `json:"healthLevel"`
	DOT         *DOTState       `json:"dot,omitempty"`
	Marks       []Mark          `json:"marks"`
	Position    *Point          `json:"position,omitempty"`
	SpawnedAt   time.Time       `json:"spawnedAt"`
}

// Stats are range-wide counters.
type Stats struct {
	TotalDamage    int64 `json:"totalDamage"`
	TotalHits      int64 `json:"totalHits"`
	DestroyedCount int64 `json:"destroyedCount"`
}

// DamageOutcome reports one accepted damage application.
type DamageOutcome struct {
	Entity Entity `json:"entity"`
	// Dealt is the health actually removed after clamping.
	Dealt int `json:"dealt"`
	// Destroyed is true only for the hit that reached zero.
	Destroyed bool `json:"destroyed"`
}

type record struct {
	id         int64
	profile    profile.Profile
	health     int
	maxHealth  int
	destroyed  bool
	crackStage int
	dot        *dotEffect
	marks      []Mark
	position   *Point
	spawnedAt  time.Time
}

func (r *record) snapshot() Entity {
	e := Entity{
		ID:          r.id,
		Profile:     r.profile,
		Health:      r.health,
		MaxHealth:   r.maxHealth,
		Destroyed:   r.destroyed,
		CrackStage:  r.crackStage,
		HealthLevel: LevelOf(r.health, r.maxHealth),
		Marks:       slices.Clone(r.marks),
		SpawnedAt:   r.spawnedAt,
	}
	if e.Marks == nil {
		e.Marks = []Mark{}
	}
	if r.position != nil {
		pos := *r.position
		e.Position = &pos
	}
	if r.dot != nil {
		e.DOT = &DOTState{
			Damage:         r.dot.damage,
			TicksRemaining: r.dot.remaining,
			TickInterval:   r.dot.interval,
		}
	}
	return e
}
