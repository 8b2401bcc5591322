package sweep

import (
	"fmt"

	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/world"
)

// Logic is a world with every access rule compiled against a predicate
// registry. Compilation happens once at load time so an unknown predicate
// fails the load-rules command instead of a later sweep.
//
// Logic is immutable and safe for concurrent use.
type Logic struct {
	world *world.World
	exits map[*world.Exit]*rules.Compiled
	locs  map[string]*rules.Compiled
}

// Compile resolves every exit and location rule in the world.
func Compile(w *world.World, reg *rules.Registry) (*Logic, error) {
	logic := &Logic{
		world: w,
		exits: make(map[*world.Exit]*rules.Compiled),
		locs:  make(map[string]*rules.Compiled),
	}
	for _, region := range w.Regions {
		for _, exit := range region.Exits {
			compiled, err := rules.Compile(exit.Rule, reg, w.Game)
			if err != nil {
				return nil, fmt.Errorf("exit %q: %w", exit.Name, err)
			}
			logic.exits[exit] = compiled
		}
		for _, loc := range region.Locations {
			compiled, err := rules.Compile(loc.Rule, reg, w.Game)
			if err != nil {
				return nil, fmt.Errorf("location %q: %w", loc.Name, err)
			}
			logic.locs[loc.Name] = compiled
		}
	}
	return logic, nil
}

// World returns the world this logic was compiled from.
func (l *Logic) World() *world.World {
	return l.world
}

// ExitOpen evaluates an exit's access rule against a state.
func (l *Logic) ExitOpen(exit *world.Exit, st rules.State) (bool, error) {
	open, err := l.exits[exit].Evaluate(st)
	if err != nil {
		return false, fmt.Errorf("exit %q: %w", exit.Name, err)
	}
	return open, nil
}

// LocationOpen evaluates a location's own access rule against a state.
// It does not consider the parent region's reachability.
func (l *Logic) LocationOpen(name string, st rules.State) (bool, error) {
	compiled, ok := l.locs[name]
	if !ok {
		return false, fmt.Errorf("location %q not defined", name)
	}
	open, err := compiled.Evaluate(st)
	if err != nil {
		return false, fmt.Errorf("location %q: %w", name, err)
	}
	return open, nil
}

// evalState adapts raw player state to rules.State for sweeping.
type evalState struct {
	inventory map[string]int
	checked   map[string]struct{}
}

func (s *evalState) ItemCount(item string) int {
	return s.inventory[item]
}

func (s *evalState) Checked(location string) bool {
	_, ok := s.checked[location]
	return ok
}

// Sweep recomputes reachability from scratch for the given player state.
//
// The start region seeds the frontier; each pass scans every exit of every
// reachable region and marks destinations whose rule holds. Bidirectional
// exits are considered from either endpoint. Passes repeat until one adds
// no region - termination is bounded by the region count because a pass
// only ever adds regions.
//
// Sweep is pure: same inputs, same output, no retained state. Callers run
// it after every inventory-mutating command.
func (l *Logic) Sweep(inventory map[string]int, checked map[string]struct{}) (*Reachability, error) {
	st := &evalState{inventory: inventory, checked: checked}
	w := l.world

	reachable := make(map[string]bool, len(w.Regions))
	reachable[w.Start] = true

	for {
		added := false
		for _, region := range w.Regions {
			for _, exit := range region.Exits {
				fromOK := reachable[region.Name]
				backOK := exit.Bidirectional && exit.Reverse == nil && reachable[exit.Connected]
				if !fromOK && !backOK {
					continue
				}
				open, err := l.ExitOpen(exit, st)
				if err != nil {
					return nil, err
				}
				if !open {
					continue
				}
				// A declared reverse exit carries its own rule and is
				// scanned from its own region; only flag-bidirectional
				// exits are walked backwards under the forward rule.
				if fromOK && !reachable[exit.Connected] {
					reachable[exit.Connected] = true
					added = true
				}
				if backOK && !reachable[region.Name] {
					reachable[region.Name] = true
					added = true
				}
			}
		}
		if !added {
			break
		}
	}

	reach := &Reachability{
		Regions:   make(map[string]RegionState, len(w.Regions)),
		Locations: make(map[string]LocationState),
	}

	for name, region := range w.Regions {
		if !reachable[name] {
			reach.Regions[name] = RegionUnreachable
			for _, loc := range region.Locations {
				reach.Locations[loc.Name] = LocationUnreachable
			}
			continue
		}

		allChecked := len(region.Locations) > 0
		for _, loc := range region.Locations {
			open, err := l.LocationOpen(loc.Name, st)
			if err != nil {
				return nil, err
			}
			if open {
				reach.Locations[loc.Name] = LocationReachable
			} else {
				reach.Locations[loc.Name] = LocationUnreachable
			}
			if _, done := checked[loc.Name]; !done {
				allChecked = false
			}
		}
		if allChecked {
			reach.Regions[name] = RegionChecked
		} else {
			reach.Regions[name] = RegionReachable
		}
	}

	return reach, nil
}
