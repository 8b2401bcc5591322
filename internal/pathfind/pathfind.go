// Package pathfind answers "how do I get from here to there right now":
// shortest hop-count routes over the part of the world graph that the
// current snapshot makes traversable.
package pathfind

import (
	"fmt"
	"sort"

	"github.com/quillback/spheretrace/internal/sweep"
)

// Path is a route between two regions.
type Path struct {
	// Steps lists the regions visited, source first, target last.
	Steps []string

	// NextExit is the name of the exit leaving the source, empty for a
	// zero-length path.
	NextExit string

	// Length is the hop count, always len(Steps)-1.
	Length int
}

// edge is one directed entry in the filtered adjacency view.
type edge struct {
	to   string
	name string
}

// FindPath returns the shortest route from source to target under the
// current snapshot, or nil when no accessible route exists. A nil result
// is distinct from the zero-length path returned when source == target.
//
// Only edges between snapshot-reachable regions whose access rule holds
// are traversable. Bidirectional exits contribute both directions: a
// declared reverse exit supplies its own edge (and its own rule); an exit
// made bidirectional by the world flag is walked backwards under the
// forward rule and name. Equal-length routes tie-break by adjacency
// construction order - first edge enumerated wins.
func FindPath(logic *sweep.Logic, snap *sweep.Snapshot, source, target string) (*Path, error) {
	w := logic.World()
	if w.Region(source) == nil {
		return nil, fmt.Errorf("unknown region %q", source)
	}
	if w.Region(target) == nil {
		return nil, fmt.Errorf("unknown region %q", target)
	}

	if source == target {
		if !snap.RegionReachable(source) {
			return nil, nil
		}
		return &Path{Steps: []string{source}, Length: 0}, nil
	}

	adj, err := buildAdjacency(logic, snap)
	if err != nil {
		return nil, err
	}

	// Unweighted BFS; prev records the edge that first discovered a region.
	type arrival struct {
		from string
		via  string
	}
	prev := make(map[string]arrival)
	visited := map[string]bool{source: true}
	queue := []string{source}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			break
		}
		for _, e := range adj[current] {
			if visited[e.to] {
				continue
			}
			visited[e.to] = true
			prev[e.to] = arrival{from: current, via: e.name}
			queue = append(queue, e.to)
		}
	}

	if !visited[target] {
		return nil, nil
	}

	// Walk back from the target to assemble the step list.
	steps := []string{target}
	for at := target; at != source; {
		hop := prev[at]
		steps = append(steps, hop.from)
		at = hop.from
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	return &Path{
		Steps:    steps,
		NextExit: prev[steps[1]].via,
		Length:   len(steps) - 1,
	}, nil
}

// buildAdjacency enumerates regions in sorted order and each region's exits
// in declaration order, which fixes the BFS tie-break deterministically.
func buildAdjacency(logic *sweep.Logic, snap *sweep.Snapshot) (map[string][]edge, error) {
	w := logic.World()
	adj := make(map[string][]edge)

	names := make([]string, 0, len(w.Regions))
	for name := range w.Regions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !snap.RegionReachable(name) {
			continue
		}
		for _, exit := range w.Regions[name].Exits {
			if !snap.RegionReachable(exit.Connected) {
				continue
			}
			open, err := logic.ExitOpen(exit, snap)
			if err != nil {
				return nil, err
			}
			if !open {
				continue
			}
			adj[name] = append(adj[name], edge{to: exit.Connected, name: exit.Name})

			// Declared reverse exits enumerate themselves with their own
			// rule; only flag-bidirectional exits need a synthetic edge.
			if exit.Bidirectional && exit.Reverse == nil {
				adj[exit.Connected] = append(adj[exit.Connected], edge{to: name, name: exit.Name})
			}
		}
	}

	return adj, nil
}
