package entity

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultCrackThresholds are the damage percentages at which the three
// visual crack levels appear.
var DefaultCrackThresholds = CrackThresholds{40, 60, 80}

// CrackThresholds are ascending damage percentages in (0, 100].
type CrackThresholds []int

// NewCrackThresholds validates values and returns them sorted ascending.
func NewCrackThresholds(values []int) (CrackThresholds, error) {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	for _, v := range sorted {
		if v <= 0 || v > 100 {
			return nil, fmt.Errorf("crack threshold %d out of range (0,100]", v)
		}
	}
	return CrackThresholds(slices.Compact(sorted)), nil
}

// ParseCrackThresholds parses a comma separated list such as "40,60,80".
func ParseCrackThresholds(raw string) (CrackThresholds, error) {
	var values []int
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse crack threshold %q: %w", part, err)
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one crack threshold is required")
	}
	return NewCrackThresholds(values)
}

// Stage counts the thresholds reached by the damage taken so far.
func (t CrackThresholds) Stage(health, maxHealth int) int {
	if maxHealth <= 0 {
		return 0
	}
	health = min(max(health, 0), maxHealth)
	damage := maxHealth - health
	stage := 0
	for _, threshold := range t {
		if damage*100 >= threshold*maxHealth {
			stage++
		}
	}
	return stage
}

// MaxStage is the stage of a fully destroyed entity.
func (t CrackThresholds) MaxStage() int {
	return len(t)
}

// HealthLevel buckets the health ratio for presentation.
type HealthLevel string

const (
	HealthHigh HealthLevel = "high"
	HealthMid  HealthLevel = "mid"
	HealthLow  HealthLevel = "low"
)

// LevelOf returns high above 60% health, mid above 30%, low otherwise.
func LevelOf(health, maxHealth int) HealthLevel {
	if maxHealth <= 0 {
		return HealthLow
	}
	switch {
	case health*100 > 60*maxHealth:
		return HealthHigh
	case health*100 > 30*maxHealth:
		return HealthMid
	default:
		return HealthLow
	}
}
