// Package world holds the immutable world description: regions connected by
// rule-gated exits, checkable locations, and the item table. A World is
// loaded once (JSON, YAML, or compiled from CUE) and never mutated; all
// player state lives in snapshots.
package world

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quillback/spheretrace/internal/rules"
)

// DefaultStartRegion seeds the accessibility sweep when the document does
// not name a start region.
const DefaultStartRegion = "Menu"

// EventItemGroup marks items removed by the clear-event-items command.
const EventItemGroup = "events"

// Settings holds world-level flags.
type Settings struct {
	// AssumeBidirectionalExits treats every exit as traversable from both
	// endpoints even when no reverse exit is declared.
	AssumeBidirectionalExits bool
}

// World is the full world description. Immutable once Finalize has run.
type World struct {
	Game     string
	Start    string
	Settings Settings
	Regions  map[string]*Region

	// Items maps player id to that player's item table.
	Items map[string]map[string]ItemDef

	locations map[string]*Location
}

// Region is a named node in the world graph.
type Region struct {
	Name      string
	Exits     []*Exit
	Locations []*Location
}

// Exit is a directed edge between two regions, gated by an access rule.
// From, Reverse, and Bidirectional are resolved by Finalize.
type Exit struct {
	Name      string
	Connected string
	Rule      rules.Rule

	From          *Region
	Reverse       *Exit
	Bidirectional bool
}

// Location is a checkable point within a region.
type Location struct {
	Name   string
	Parent string
	Rule   rules.Rule

	// Item names the item found at this location, empty when unknown.
	Item string
}

// ItemDef describes an item in the item table.
type ItemDef struct {
	Advancement bool
	Groups      []string
}

// Finalize indexes locations, validates graph references, and resolves
// reverse exits. Must be called exactly once after construction; loaders
// do this for callers.
func (w *World) Finalize() error {
	if w.Start == "" {
		w.Start = DefaultStartRegion
	}
	if _, ok := w.Regions[w.Start]; !ok {
		return fmt.Errorf("start region %q not defined", w.Start)
	}

	w.locations = make(map[string]*Location)
	for name, region := range w.Regions {
		region.Name = name
		for _, exit := range region.Exits {
			exit.From = region
			if _, ok := w.Regions[exit.Connected]; !ok {
				return fmt.Errorf("exit %q in region %q connects to undefined region %q",
					exit.Name, name, exit.Connected)
			}
		}
		for _, loc := range region.Locations {
			loc.Parent = name
			if prev, dup := w.locations[loc.Name]; dup {
				return fmt.Errorf("location %q defined in both %q and %q",
					loc.Name, prev.Parent, name)
			}
			w.locations[loc.Name] = loc
		}
	}

	// Resolve reverse exits: the first exit of the destination region that
	// points back at the source. Declaration order breaks ties.
	for _, region := range w.Regions {
		for _, exit := range region.Exits {
			dest := w.Regions[exit.Connected]
			for _, back := range dest.Exits {
				if back.Connected == region.Name {
					exit.Reverse = back
					break
				}
			}
			exit.Bidirectional = exit.Reverse != nil || w.Settings.AssumeBidirectionalExits
		}
	}

	return nil
}

// Region returns the region by name, nil when undefined.
func (w *World) Region(name string) *Region {
	return w.Regions[name]
}

// Location returns the location by name, nil when undefined.
func (w *World) Location(name string) *Location {
	return w.locations[name]
}

// LocationNames returns all location names, sorted.
func (w *World) LocationNames() []string {
	names := make([]string, 0, len(w.locations))
	for name := range w.locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegionNames returns all region names, sorted.
func (w *World) RegionNames() []string {
	names := make([]string, 0, len(w.Regions))
	for name := range w.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlayerItems returns the item table for a player, nil when absent.
func (w *World) PlayerItems(player string) map[string]ItemDef {
	return w.Items[player]
}

// IsEventItem reports whether an item carries the events group for a player.
func (w *World) IsEventItem(player, item string) bool {
	def, ok := w.Items[player][item]
	if !ok {
		return false
	}
	for _, group := range def.Groups {
		if strings.EqualFold(group, EventItemGroup) {
			return true
		}
	}
	return false
}
