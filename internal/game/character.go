package game

import (
	"fmt"
	"sort"
	"strings"
)

// Attributes are the character's base capabilities, rated 1-10.
type Attributes struct {
	Might    int `json:"might"`
	Agility  int `json:"agility"`
	Wits     int `json:"wits"`
	Presence int `json:"presence"`
	Fortune  int `json:"fortune"`
}

// Character is the player's sheet. Mutated only by the session between
// packs; the packer sees it as rendered snapshot text.
type Character struct {
	Name       string     `json:"name"`
	Level      int        `json:"level"`
	Attributes Attributes `json:"attributes"`
	Health     int        `json:"health"`
	MaxHealth  int        `json:"max_health"`
	Caps       int        `json:"caps"`
	Location   string     `json:"location"`
	Conditions []string   `json:"conditions,omitempty"`
	Inventory  []string   `json:"inventory,omitempty"`
}

// NewCharacter creates a level-one character with baseline attributes.
func NewCharacter(name string) *Character {
	return &Character{
		Name:       name,
		Level:      1,
		Attributes: Attributes{Might: 5, Agility: 5, Wits: 5, Presence: 5, Fortune: 5},
		Health:     20,
		MaxHealth:  20,
		Caps:       50,
		Location:   "the outskirts",
	}
}

// Attribute returns a named attribute value, or 0 for unknown names.
func (c *Character) Attribute(name string) int {
	switch strings.ToLower(name) {
	case "might":
		return c.Attributes.Might
	case "agility":
		return c.Attributes.Agility
	case "wits":
		return c.Attributes.Wits
	case "presence":
		return c.Attributes.Presence
	case "fortune":
		return c.Attributes.Fortune
	}
	return 0
}

// RenderSnapshot serializes the live state for the packer's state
// snapshot section. Output is deterministic for identical state:
// standings are sorted and no timestamps appear.
func RenderSnapshot(c *Character, clock *Clock, standings []FactionStanding) string {
	var b strings.Builder
	b.WriteString("[State]\n")
	fmt.Fprintf(&b, "Time: %s\n", clock.Stamp())
	fmt.Fprintf(&b, "Character: %s (level %d) at %s\n", c.Name, c.Level, c.Location)
	fmt.Fprintf(&b, "Health: %d/%d | Caps: %d\n", c.Health, c.MaxHealth, c.Caps)
	fmt.Fprintf(&b, "Attributes: might %d, agility %d, wits %d, presence %d, fortune %d\n",
		c.Attributes.Might, c.Attributes.Agility, c.Attributes.Wits,
		c.Attributes.Presence, c.Attributes.Fortune)
	if len(c.Conditions) > 0 {
		fmt.Fprintf(&b, "Conditions: %s\n", strings.Join(c.Conditions, ", "))
	}
	if len(c.Inventory) > 0 {
		fmt.Fprintf(&b, "Inventory: %s\n", strings.Join(c.Inventory, ", "))
	}
	if len(standings) > 0 {
		sorted := append([]FactionStanding(nil), standings...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Faction < sorted[j].Faction })
		b.WriteString("Factions:\n")
		for _, s := range sorted {
			fmt.Fprintf(&b, "- %s: %s (%.2f)\n", s.Faction, s.Standing, s.Reputation)
		}
	}
	return b.String()
}
