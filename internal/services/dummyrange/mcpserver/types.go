package mcpserver

import (
	"time"

	"github.com/louisbranch/dummyrange/internal/services/dummyrange/app"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/combat"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
)

// ProfileFetchInput represents the MCP tool input for a profile lookup.
type ProfileFetchInput struct {
	Username string `json:"username" jsonschema:"player username to resolve"`
}

// ProfileResult is a resolved player profile.
type ProfileResult struct {
	ID          int64  `json:"id" jsonschema:"player id, negative for demo profiles"`
	Username    string `json:"username" jsonschema:"player username"`
	DisplayName string `json:"display_name" jsonschema:"player display name"`
	AvatarURL   string `json:"avatar_url,omitempty" jsonschema:"avatar image url when available"`
	IsDemo      bool   `json:"is_demo" jsonschema:"true when the profile is an offline stand-in"`
}

// EntitySpawnInput represents the MCP tool input for spawning an entity.
type EntitySpawnInput struct {
	Username string   `json:"username" jsonschema:"player username to spawn as a target"`
	X        *float64 `json:"x,omitempty" jsonschema:"optional x position"`
	Y        *float64 `json:"y,omitempty" jsonschema:"optional y position"`
}

// EntityIDInput selects one entity.
type EntityIDInput struct {
	EntityID int64 `json:"entity_id" jsonschema:"entity identifier"`
}

// EntityListInput is the empty input of entity_list.
type EntityListInput struct{}

// EntityResult is one target on the range.
type EntityResult struct {
	ID          int64         `json:"id" jsonschema:"entity identifier"`
	Profile     ProfileResult `json:"profile" jsonschema:"profile the entity was spawned from"`
	Health      int           `json:"health" jsonschema:"current health"`
	MaxHealth   int           `json:"max_health" jsonschema:"maximum health"`
	Destroyed   bool          `json:"destroyed" jsonschema:"true once health reached zero"`
	CrackStage  int           `json:"crack_stage" jsonschema:"visual damage stage"`
	HealthLevel string        `json:"health_level" jsonschema:"high, mid or low"`
	DOTActive   bool          `json:"dot_active" jsonschema:"true while a damage-over-time effect runs"`
	DOTTicks    int           `json:"dot_ticks_remaining,omitempty" jsonschema:"ticks left on the running effect"`
	Marks       int           `json:"marks" jsonschema:"number of impact marks"`
	X           *float64      `json:"x,omitempty" jsonschema:"x position when placed"`
	Y           *float64      `json:"y,omitempty" jsonschema:"y position when placed"`
	SpawnedAt   string        `json:"spawned_at" jsonschema:"RFC3339 timestamp when the entity spawned"`
}

// EntityListResult lists every entity.
type EntityListResult struct {
	Entities []EntityResult `json:"entities" jsonschema:"entities ordered by id"`
}

// EntityAttackInput represents the MCP tool input for attacking an entity.
type EntityAttackInput struct {
	EntityID int64    `json:"entity_id" jsonschema:"entity identifier"`
	ToolID   string   `json:"tool_id,omitempty" jsonschema:"tool to use, defaults to the selected tool"`
	X        *float64 `json:"x,omitempty" jsonschema:"optional impact x position"`
	Y        *float64 `json:"y,omitempty" jsonschema:"optional impact y position"`
}

// HitResult is the damage dealt to one entity.
type HitResult struct {
	EntityID  int64 `json:"entity_id" jsonschema:"entity identifier"`
	Damage    int   `json:"damage" jsonschema:"rolled damage"`
	Dealt     int   `json:"dealt" jsonschema:"health actually removed"`
	Critical  bool  `json:"critical" jsonschema:"true for a critical hit"`
	Destroyed bool  `json:"destroyed" jsonschema:"true when this hit destroyed the entity"`
}

// EntityAttackResult reports what an attack changed.
type EntityAttackResult struct {
	Applied    bool         `json:"applied" jsonschema:"false when the target was already destroyed"`
	ToolID     string       `json:"tool_id,omitempty" jsonschema:"tool used"`
	Primary    *HitResult   `json:"primary,omitempty" jsonschema:"hit on the target"`
	Splash     []HitResult  `json:"splash,omitempty" jsonschema:"area hits on nearby entities"`
	DOTApplied bool         `json:"dot_applied" jsonschema:"true when a damage-over-time effect started"`
	Marked     bool         `json:"marked" jsonschema:"true when an impact mark was left"`
	Entity     EntityResult `json:"entity" jsonschema:"target after the attack"`
}

// EntityRemoveResult confirms a removal.
type EntityRemoveResult struct {
	Removed bool `json:"removed" jsonschema:"true when the entity was removed"`
}

// RangeClearInput controls range_clear.
type RangeClearInput struct {
	RespawnOnly bool `json:"respawn_only,omitempty" jsonschema:"respawn every entity instead of removing them"`
}

// RangeClearResult reports a clear or mass respawn.
type RangeClearResult struct {
	Removed   int `json:"removed" jsonschema:"entities removed"`
	Respawned int `json:"respawned" jsonschema:"entities respawned"`
}

// ToolListInput is the empty input of tool_list.
type ToolListInput struct{}

// ToolResult describes one attack tool.
type ToolResult struct {
	ID             string  `json:"id" jsonschema:"tool identifier"`
	Name           string  `json:"name" jsonschema:"display name"`
	Category       string  `json:"category" jsonschema:"melee, ranged, explosive or elemental"`
	BaseDamage     int     `json:"base_damage" jsonschema:"damage before criticals"`
	CriticalChance float64 `json:"critical_chance" jsonschema:"critical probability between 0 and 1"`
	AreaEffect     bool    `json:"area_effect" jsonschema:"true when the tool splashes nearby entities"`
	DamageOverTime bool    `json:"damage_over_time" jsonschema:"true when the tool applies a lasting effect"`
	LeavesMark     bool    `json:"leaves_mark" jsonschema:"true when hits leave impact marks"`
}

// ToolListResult lists the catalog.
type ToolListResult struct {
	Tools    []ToolResult `json:"tools" jsonschema:"available tools"`
	Selected string       `json:"selected" jsonschema:"currently selected tool id"`
}

// ToolSelectInput represents the MCP tool input for selecting a tool.
type ToolSelectInput struct {
	ToolID string `json:"tool_id" jsonschema:"tool identifier to select"`
}

// StatsInput is the empty input of stats_get.
type StatsInput struct{}

// StatsResult summarizes the range.
type StatsResult struct {
	TotalDamage     int64  `json:"total_damage" jsonschema:"damage dealt since the last clear"`
	TotalHits       int64  `json:"total_hits" jsonschema:"hits since the last clear"`
	DestroyedCount  int64  `json:"destroyed_count" jsonschema:"entities destroyed since the last clear"`
	Entities        int    `json:"entities" jsonschema:"entities on the range"`
	CachedLookups   int    `json:"cached_lookups" jsonschema:"cached profile lookups"`
	PendingRequests int    `json:"pending_requests" jsonschema:"queued upstream requests"`
	SelectedTool    string `json:"selected_tool" jsonschema:"currently selected tool id"`
}

func profileResult(p profile.Profile) ProfileResult {
	r := ProfileResult{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		IsDemo:      p.IsDemo,
	}
	if p.AvatarURL != nil {
		r.AvatarURL = *p.AvatarURL
	}
	return r
}

func entityResult(e entity.Entity) EntityResult {
	r := EntityResult{
		ID:          e.ID,
		Profile:     profileResult(e.Profile),
		Health:      e.Health,
		MaxHealth:   e.MaxHealth,
		Destroyed:   e.Destroyed,
		CrackStage:  e.CrackStage,
		HealthLevel: string(e.HealthLevel),
		Marks:       len(e.Marks),
		SpawnedAt:   formatTime(e.SpawnedAt),
	}
	if e.DOT != nil {
		r.DOTActive = true
		r.DOTTicks = e.DOT.TicksRemaining
	}
	if e.Position != nil {
		x, y := e.Position.X, e.Position.Y
		r.X, r.Y = &x, &y
	}
	return r
}

func hitResult(h combat.Hit) HitResult {
	return HitResult{
		EntityID:  h.EntityID,
		Damage:    h.Damage,
		Dealt:     h.Outcome.Dealt,
		Critical:  h.Critical,
		Destroyed: h.Outcome.Destroyed,
	}
}

func toolResult(t combat.Tool) ToolResult {
	return ToolResult{
		ID:             t.ID,
		Name:           t.Name,
		Category:       string(t.Category),
		BaseDamage:     t.BaseDamage,
		CriticalChance: t.CriticalChance,
		AreaEffect:     t.IsAreaEffect,
		DamageOverTime: t.DOT != nil,
		LeavesMark:     t.LeavesMark,
	}
}

func statsResult(s app.RangeStats) StatsResult {
	return StatsResult{
		TotalDamage:     s.TotalDamage,
		TotalHits:       s.TotalHits,
		DestroyedCount:  s.DestroyedCount,
		Entities:        s.Entities,
		CachedLookups:   s.CachedLookups,
		PendingRequests: s.PendingRequests,
		SelectedTool:    s.SelectedTool,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// point returns nil unless both coordinates are set.
func point(x, y *float64) *entity.Point {
	if x == nil || y == nil {
		return nil
	}
	return &entity.Point{X: *x, Y: *y}
}
