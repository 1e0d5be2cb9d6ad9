// Package combat turns tool attacks into damage against range entities.
package combat

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Category groups tools for presentation.
type Category string

const (
	CategoryMelee     Category = "melee"
	CategoryRanged    Category = "ranged"
	CategoryExplosive Category = "explosive"
	CategoryElemental Category = "elemental"
)

func (c Category) valid() bool {
	switch c {
	case CategoryMelee, CategoryRanged, CategoryExplosive, CategoryElemental:
		return true
	}
	return false
}

// DOTSpec is the damage-over-time a tool leaves behind.
type DOTSpec struct {
	Damage    int           `json:"damage"`
	Duration  time.Duration `json:"durationNs"`
	TickCount int           `json:"tickCount"`
}

// TickInterval spreads the ticks evenly over the duration.
func (d DOTSpec) TickInterval() time.Duration {
	if d.TickCount <= 0 {
		return 0
	}
	return d.Duration / time.Duration(d.TickCount)
}

// Tool is a static weapon definition.
type Tool struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Icon                  string   `json:"icon"`
	Category              Category `json:"category"`
	BaseDamage            int      `json:"baseDamage"`
	CriticalChance        float64  `json:"criticalChance"`
	CriticalMultiplier    float64  `json:"criticalMultiplier"`
	DOT                   *DOTSpec `json:"dot,omitempty"`
	IsAreaEffect          bool     `json:"isAreaEffect"`
	AreaRadius            float64  `json:"areaRadius,omitempty"`
	SplashDamage          int      `json:"splashDamage,omitempty"`
	SplashRollsCritical   bool     `json:"splashRollsCritical,omitempty"`
	SplashIncludesPrimary bool     `json:"splashIncludesPrimary,omitempty"`
	LeavesMark            bool     `json:"leavesMark"`
}

func (t Tool) validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return fmt.Errorf("tool id is required")
	case !t.Category.valid():
		return fmt.Errorf("tool %s: unknown category %q", t.ID, t.Category)
	case t.BaseDamage < 0:
		return fmt.Errorf("tool %s: base damage must not be negative", t.ID)
	case t.CriticalChance < 0 || t.CriticalChance > 1:
		return fmt.Errorf("tool %s: critical chance must be within [0,1]", t.ID)
	case t.CriticalMultiplier < 1:
		return fmt.Errorf("tool %s: critical multiplier must be at least 1", t.ID)
	case t.IsAreaEffect && t.AreaRadius <= 0:
		return fmt.Errorf("tool %s: area radius must be positive", t.ID)
	case t.SplashDamage < 0:
		return fmt.Errorf("tool %s: splash damage must not be negative", t.ID)
	}
	if d := t.DOT; d != nil && (d.Damage <= 0 || d.TickCount <= 0 || d.Duration <= 0) {
		return fmt.Errorf("tool %s: dot needs positive damage, tick count and duration", t.ID)
	}
	return nil
}

// Registry is the immutable tool catalog.
type Registry struct {
	tools []Tool
	byID  map[string]Tool
}

// NewRegistry validates tools and indexes them by id, keeping catalog order.
func NewRegistry(tools []Tool) (*Registry, error) {
	if len(tools) == 0 {
		return nil, fmt.Errorf("tool catalog is empty")
	}
	r := &Registry{byID: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if err := tool.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[tool.ID]; dup {
			return nil, fmt.Errorf("duplicate tool id %q", tool.ID)
		}
		r.byID[tool.ID] = tool
		r.tools = append(r.tools, tool)
	}
	return r, nil
}

// Get returns the tool with id.
func (r *Registry) Get(id string) (Tool, bool) {
	tool, ok := r.byID[id]
	return tool, ok
}

// List returns every tool in catalog order.
func (r *Registry) List() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Default is the first catalog entry.
func (r *Registry) Default() Tool {
	return r.tools[0]
}

// --- YAML loading ---

//go:embed catalog.yaml
var defaultCatalog []byte

type dotEntry struct {
	Damage     int `yaml:"damage"`
	DurationMS int `yaml:"duration_ms"`
	TickCount  int `yaml:"tick_count"`
}

type areaEntry struct {
	Radius                float64 `yaml:"radius"`
	SplashDamage          int     `yaml:"splash_damage"`
	SplashRollsCritical   bool    `yaml:"splash_rolls_critical"`
	SplashIncludesPrimary bool    `yaml:"splash_includes_primary"`
}

type toolEntry struct {
	ID                 string     `yaml:"id"`
	Name               string     `yaml:"name"`
	Icon               string     `yaml:"icon"`
	Category           string     `yaml:"category"`
	BaseDamage         int        `yaml:"base_damage"`
	CriticalChance     float64    `yaml:"critical_chance"`
	CriticalMultiplier float64    `yaml:"critical_multiplier"`
	DOT                *dotEntry  `yaml:"dot"`
	Area               *areaEntry `yaml:"area"`
	LeavesMark         bool       `yaml:"leaves_mark"`
}

type catalogFile struct {
	Tools []toolEntry `yaml:"tools"`
}

// DefaultRegistry loads the embedded catalog.
func DefaultRegistry() (*Registry, error) {
	return LoadCatalog(defaultCatalog)
}

// LoadCatalogFile loads a replacement catalog from path.
func LoadCatalogFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return LoadCatalog(data)
}

// LoadCatalog parses a YAML tool catalog.
func LoadCatalog(data []byte) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}
	tools := make([]Tool, 0, len(f.Tools))
	for _, e := range f.Tools {
		tool := Tool{
			ID:                 strings.TrimSpace(e.ID),
			Name:               e.Name,
			Icon:               e.Icon,
			Category:           Category(e.Category),
			BaseDamage:         e.BaseDamage,
			CriticalChance:     e.CriticalChance,
			CriticalMultiplier: e.CriticalMultiplier,
			LeavesMark:         e.LeavesMark,
		}
		if tool.CriticalMultiplier == 0 {
			tool.CriticalMultiplier = 1
		}
		if e.DOT != nil {
			tool.DOT = &DOTSpec{
				Damage:    e.DOT.Damage,
				Duration:  time.Duration(e.DOT.DurationMS) * time.Millisecond,
				TickCount: e.DOT.TickCount,
			}
		}
		if e.Area != nil {
			tool.IsAreaEffect = true
			tool.AreaRadius = e.Area.Radius
			tool.SplashDamage = e.Area.SplashDamage
			tool.SplashRollsCritical = e.Area.SplashRollsCritical
			tool.SplashIncludesPrimary = e.Area.SplashIncludesPrimary
		}
		tools = append(tools, tool)
	}
	return NewRegistry(tools)
}
