package combat

import (
	"math"
	"math/rand/v2"
	"sync"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
)

// Attack is one use of a tool against an entity.
type Attack struct {
	// ToolID overrides the selected tool when set.
	ToolID string `json:"tool_id,omitempty"`
	// Impact is where the attack landed; area tools default to the target's
	// position.
	Impact *entity.Point `json:"impact,omitempty"`
}

// Hit is the damage dealt to one entity by an attack.
type Hit struct {
	EntityID int64                `json:"entityId"`
	Damage   int                  `json:"damage"`
	Critical bool                 `json:"critical"`
	Splash   bool                 `json:"splash"`
	Outcome  entity.DamageOutcome `json:"outcome"`
}

// AttackResult reports everything an attack changed.
type AttackResult struct {
	Tool       Tool         `json:"tool"`
	Primary    Hit          `json:"primary"`
	Splash     []Hit        `json:"splash,omitempty"`
	DOTApplied bool         `json:"dotApplied"`
	Mark       *entity.Mark `json:"mark,omitempty"`
}

// Orchestrator resolves tools, rolls criticals and applies the resulting
// damage to the entity store.
type Orchestrator struct {
	store *entity.Store
	tools *Registry

	mu       sync.Mutex
	rng      *rand.Rand
	selected string
}

// NewOrchestrator builds an orchestrator; the first catalog tool starts
// selected.
func NewOrchestrator(store *entity.Store, tools *Registry, rng *rand.Rand) *Orchestrator {
	return &Orchestrator{
		store:    store,
		tools:    tools,
		rng:      rng,
		selected: tools.Default().ID,
	}
}

// Tools returns the catalog.
func (o *Orchestrator) Tools() []Tool {
	return o.tools.List()
}

// Tool looks up a catalog entry.
func (o *Orchestrator) Tool(id string) (Tool, bool) {
	return o.tools.Get(id)
}

// SelectTool makes id the default tool for attacks without an explicit one.
func (o *Orchestrator) SelectTool(id string) (Tool, error) {
	tool, ok := o.tools.Get(id)
	if !ok {
		return Tool{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"unknown tool", map[string]string{"tool_id": id})
	}
	o.mu.Lock()
	o.selected = tool.ID
	o.mu.Unlock()
	return tool, nil
}

// SelectedTool returns the current default tool.
func (o *Orchestrator) SelectedTool() Tool {
	o.mu.Lock()
	id := o.selected
	o.mu.Unlock()
	tool, _ := o.tools.Get(id)
	return tool
}

// Attack hits entityID with a tool. It reports false without side effects
// when the entity is absent or destroyed or no tool resolves.
func (o *Orchestrator) Attack(entityID int64, a Attack) (AttackResult, bool) {
	tool, ok := o.resolveTool(a.ToolID)
	if !ok {
		return AttackResult{}, false
	}
	target, ok := o.store.Get(entityID)
	if !ok || target.Destroyed {
		return AttackResult{}, false
	}

	damage, critical := o.roll(tool.BaseDamage, tool)
	outcome, ok := o.store.ApplyDamage(entityID, damage)
	if !ok {
		return AttackResult{}, false
	}
	result := AttackResult{
		Tool:    tool,
		Primary: Hit{EntityID: entityID, Damage: damage, Critical: critical, Outcome: outcome},
	}

	if tool.DOT != nil {
		result.DOTApplied = o.store.ApplyDOT(entityID, entity.DOT{
			Damage:       tool.DOT.Damage,
			TickCount:    tool.DOT.TickCount,
			TickInterval: tool.DOT.TickInterval(),
		})
	}

	impact := a.Impact
	if impact == nil {
		impact = target.Position
	}
	if tool.LeavesMark {
		mark := entity.Mark{ToolID: tool.ID}
		if impact != nil {
			mark.At = *impact
		}
		if marked, ok := o.store.AddMark(entityID, mark); ok {
			last := marked.Marks[len(marked.Marks)-1]
			result.Mark = &last
		}
	}

	if tool.IsAreaEffect {
		result.Splash = o.splash(tool, entityID, impact)
	}
	return result, true
}

func (o *Orchestrator) splash(tool Tool, primaryID int64, impact *entity.Point) []Hit {
	var hits []Hit
	if tool.SplashIncludesPrimary {
		if hit, ok := o.splashHit(tool, primaryID); ok {
			hits = append(hits, hit)
		}
	}
	if impact == nil {
		return hits
	}
	for _, e := range o.store.List() {
		if e.ID == primaryID || e.Destroyed || e.Position == nil {
			continue
		}
		if e.Position.Dist(*impact) > tool.AreaRadius {
			continue
		}
		if hit, ok := o.splashHit(tool, e.ID); ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

func (o *Orchestrator) splashHit(tool Tool, id int64) (Hit, bool) {
	damage, critical := tool.SplashDamage, false
	if tool.SplashRollsCritical {
		damage, critical = o.roll(tool.SplashDamage, tool)
	}
	outcome, ok := o.store.ApplyDamage(id, damage)
	if !ok {
		return Hit{}, false
	}
	return Hit{EntityID: id, Damage: damage, Critical: critical, Splash: true, Outcome: outcome}, true
}

func (o *Orchestrator) resolveTool(id string) (Tool, bool) {
	if id == "" {
		return o.SelectedTool(), true
	}
	return o.tools.Get(id)
}

// roll returns floor(base*multiplier) when a uniform draw lands under the
// tool's critical chance, base otherwise.
func (o *Orchestrator) roll(base int, tool Tool) (int, bool) {
	o.mu.Lock()
	draw := o.rng.Float64()
	o.mu.Unlock()
	if draw < tool.CriticalChance {
		return int(math.Floor(float64(base) * tool.CriticalMultiplier)), true
	}
	return base, false
}
