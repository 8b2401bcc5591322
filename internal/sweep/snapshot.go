// Package sweep computes region and location reachability by fixed-point
// traversal of the world graph, and packages the result together with the
// player state as an immutable Snapshot.
package sweep

import (
	"sort"
)

// RegionState is the reachability state of a region.
// A region only ever moves forward through these states; it never regresses
// except on a full world reload.
type RegionState uint8

const (
	RegionUnreachable RegionState = iota
	RegionReachable
	RegionChecked // reachable and every location in it checked
)

func (s RegionState) String() string {
	switch s {
	case RegionReachable:
		return "reachable"
	case RegionChecked:
		return "checked"
	default:
		return "unreachable"
	}
}

// LocationState is the reachability state of a location.
type LocationState uint8

const (
	LocationUnreachable LocationState = iota
	LocationReachable
)

func (s LocationState) String() string {
	if s == LocationReachable {
		return "reachable"
	}
	return "unreachable"
}

// Reachability is the raw result of one sweep pass.
type Reachability struct {
	Regions   map[string]RegionState
	Locations map[string]LocationState
}

// Snapshot is an immutable, versioned view of player state plus the
// reachability computed from it. Every mutating engine command produces a
// fresh Snapshot; none is ever modified in place, so a Snapshot is safe for
// concurrent reads by any number of goroutines.
type Snapshot struct {
	// Version is the logical clock value at publication, strictly
	// increasing across the engine's lifetime.
	Version int64

	// Digest is a content-addressed hash of inventory and checked
	// locations; two snapshots with equal state share a digest.
	Digest string

	Inventory        map[string]int
	CheckedLocations map[string]struct{}
	Regions          map[string]RegionState
	Locations        map[string]LocationState
}

// NewSnapshot deep-copies the mutable inputs so later engine mutations
// cannot leak into a published snapshot.
func NewSnapshot(version int64, inventory map[string]int, checked map[string]struct{}, reach *Reachability) *Snapshot {
	snap := &Snapshot{
		Version:          version,
		Inventory:        make(map[string]int, len(inventory)),
		CheckedLocations: make(map[string]struct{}, len(checked)),
		Regions:          make(map[string]RegionState, len(reach.Regions)),
		Locations:        make(map[string]LocationState, len(reach.Locations)),
	}
	for item, count := range inventory {
		snap.Inventory[item] = count
	}
	for loc := range checked {
		snap.CheckedLocations[loc] = struct{}{}
	}
	for region, state := range reach.Regions {
		snap.Regions[region] = state
	}
	for loc, state := range reach.Locations {
		snap.Locations[loc] = state
	}
	snap.Digest = stateDigest(snap.Inventory, snap.CheckedLocations)
	return snap
}

// ItemCount implements rules.State.
func (s *Snapshot) ItemCount(item string) int {
	return s.Inventory[item]
}

// Checked implements rules.State.
func (s *Snapshot) Checked(location string) bool {
	_, ok := s.CheckedLocations[location]
	return ok
}

// RegionReachable reports whether a region is reachable or checked.
func (s *Snapshot) RegionReachable(name string) bool {
	return s.Regions[name] != RegionUnreachable
}

// LocationReachable reports whether a location is currently reachable.
func (s *Snapshot) LocationReachable(name string) bool {
	return s.Locations[name] == LocationReachable
}

// AccessibleLocations returns the sorted names of reachable locations.
func (s *Snapshot) AccessibleLocations() []string {
	names := make([]string, 0, len(s.Locations))
	for name, state := range s.Locations {
		if state == LocationReachable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AccessibleRegions returns the sorted names of reachable regions.
func (s *Snapshot) AccessibleRegions() []string {
	names := make([]string, 0, len(s.Regions))
	for name, state := range s.Regions {
		if state != RegionUnreachable {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
