// Package tactic holds the immutable strategy catalog. A tactic names an
// entry threshold, the zones it may trade, its reward:risk profile, and its
// exit-management flags. Positions reference tactics by name; the catalog
// itself is never mutated at runtime.
package tactic

import (
	"fmt"

	"spotbot/zone"
)

// WeightProfile biases the external opportunity scorer. Keys are scorer
// component names; values are relative weights.
type WeightProfile map[string]float64

// Trailing configures the trailing-stop behaviour of a tactic, in
// risk-multiple (R) units.
type Trailing struct {
	Enabled     bool    `yaml:"enabled" json:"enabled"`
	ActivationR float64 `yaml:"activation_r" json:"activation_r"`
	DistanceR   float64 `yaml:"distance_r" json:"distance_r"`
}

// PartialTP configures the first partial take-profit of a tactic.
type PartialTP struct {
	Enabled  bool    `yaml:"enabled" json:"enabled"`
	TriggerR float64 `yaml:"trigger_r" json:"trigger_r"`
	Percent  float64 `yaml:"percent" json:"percent"` // fraction of the position closed, 0..1
}

// Tactic is one named strategy configuration.
type Tactic struct {
	Name           string        `yaml:"name" json:"name"`
	Zones          []zone.Zone   `yaml:"zones" json:"zones"`
	Weights        WeightProfile `yaml:"weights" json:"weights"`
	EntryThreshold float64       `yaml:"entry_threshold" json:"entry_threshold"`
	RewardRisk     float64       `yaml:"reward_risk" json:"reward_risk"`
	StopATR        float64       `yaml:"stop_atr" json:"stop_atr"`
	Trailing       Trailing      `yaml:"trailing" json:"trailing"`
	PartialTP      PartialTP     `yaml:"partial_tp" json:"partial_tp"`
}

// EligibleFor reports whether the tactic may trade in zone z.
func (t Tactic) EligibleFor(z zone.Zone) bool {
	for _, tz := range t.Zones {
		if tz == z {
			return true
		}
	}
	return false
}

// Validate checks a single tactic's configuration.
func (t Tactic) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tactic name is required")
	}
	if len(t.Zones) == 0 {
		return fmt.Errorf("tactic %s: at least one zone is required", t.Name)
	}
	for _, z := range t.Zones {
		if _, err := zone.Parse(string(z)); err != nil {
			return fmt.Errorf("tactic %s: %w", t.Name, err)
		}
	}
	if t.EntryThreshold <= 0 {
		return fmt.Errorf("tactic %s: entry_threshold must be positive", t.Name)
	}
	if t.RewardRisk <= 0 {
		return fmt.Errorf("tactic %s: reward_risk must be positive", t.Name)
	}
	if t.StopATR <= 0 {
		return fmt.Errorf("tactic %s: stop_atr must be positive", t.Name)
	}
	if t.Trailing.Enabled && (t.Trailing.ActivationR <= 0 || t.Trailing.DistanceR <= 0) {
		return fmt.Errorf("tactic %s: trailing ratios must be positive", t.Name)
	}
	if t.PartialTP.Enabled {
		if t.PartialTP.TriggerR <= 0 {
			return fmt.Errorf("tactic %s: partial_tp.trigger_r must be positive", t.Name)
		}
		if t.PartialTP.Percent <= 0 || t.PartialTP.Percent >= 1 {
			return fmt.Errorf("tactic %s: partial_tp.percent must be in (0,1)", t.Name)
		}
	}
	return nil
}

// Catalog is an ordered set of tactics. Declaration order is load-bearing:
// the scanner iterates tactics in catalog order so candidate selection stays
// deterministic.
type Catalog struct {
	tactics []Tactic
	byName  map[string]int
}

// NewCatalog validates the tactics and builds a catalog preserving their
// declaration order. Duplicate names are rejected.
func NewCatalog(tactics []Tactic) (*Catalog, error) {
	if len(tactics) == 0 {
		return nil, fmt.Errorf("catalog requires at least one tactic")
	}
	c := &Catalog{byName: make(map[string]int, len(tactics))}
	for _, t := range tactics {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tactic %s", t.Name)
		}
		c.byName[t.Name] = len(c.tactics)
		c.tactics = append(c.tactics, t)
	}
	return c, nil
}

// All returns the tactics in declaration order.
func (c *Catalog) All() []Tactic {
	out := make([]Tactic, len(c.tactics))
	copy(out, c.tactics)
	return out
}

// ByName looks a tactic up by name.
func (c *Catalog) ByName(name string) (Tactic, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tactic{}, false
	}
	return c.tactics[i], true
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultTactics())
	if err != nil {
		// the built-in table is validated by tests; a failure here is a bug
		panic(err)
	}
	return c
}

func defaultTactics() []Tactic {
	return []Tactic{
		{
			Name:           "squeeze-entry",
			Zones:          []zone.Zone{zone.Leading},
			Weights:        WeightProfile{"squeeze": 2.0, "trend": 0.5, "volume": 1.0},
			EntryThreshold: 7.0,
			RewardRisk:     2.5,
			StopATR:        1.8,
			Trailing:       Trailing{Enabled: true, ActivationR: 1.5, DistanceR: 1.0},
			PartialTP:      PartialTP{Enabled: true, TriggerR: 1.2, Percent: 0.40},
		},
		{
			Name:           "breakout-rider",
			Zones:          []zone.Zone{zone.Coincident},
			Weights:        WeightProfile{"breakout": 2.0, "volume": 1.5, "trend": 1.0},
			EntryThreshold: 7.0,
			RewardRisk:     2.0,
			StopATR:        1.5,
			Trailing:       Trailing{Enabled: true, ActivationR: 1.0, DistanceR: 0.8},
			PartialTP:      PartialTP{Enabled: true, TriggerR: 1.2, Percent: 0.40},
		},
		{
			Name:           "trend-follow",
			Zones:          []zone.Zone{zone.Lagging, zone.Coincident},
			Weights:        WeightProfile{"trend": 2.0, "momentum": 1.5},
			EntryThreshold: 6.5,
			RewardRisk:     3.0,
			StopATR:        2.2,
			Trailing:       Trailing{Enabled: true, ActivationR: 2.0, DistanceR: 1.2},
			PartialTP:      PartialTP{Enabled: false},
		},
	}
}
