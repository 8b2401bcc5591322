// Package spherelog reads recorded sphere logs and reconstructs, per log
// entry, the cumulative inventory and accessible sets expected at that
// point of the run. The reconstruction is the ground truth the replay
// validator compares the live engine against.
//
// A sphere log is line-delimited JSON, one object per line. Two encodings
// exist and are never declared in the file: verbose entries carry absolute
// state, incremental entries carry deltas. The format is detected once
// from the first state entry and then dispatched explicitly.
package spherelog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Format identifies the log encoding.
type Format int

const (
	FormatUnknown Format = iota
	// FormatVerbose entries carry absolute inventory_details /
	// accessible_locations / accessible_regions per entry.
	FormatVerbose
	// FormatIncremental entries carry new_* deltas that accumulate.
	FormatIncremental
)

func (f Format) String() string {
	switch f {
	case FormatVerbose:
		return "verbose"
	case FormatIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Index is a sphere index "N" or "N.M". The fractional part is a partial
// wave within an integer sphere; "0.1" sorts between "0" and "1".
type Index struct {
	Sphere int
	Wave   int
}

// ParseIndex parses "N" or "N.M" forms. Anything else is an error.
func ParseIndex(s string) (Index, error) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	sphere, err := strconv.Atoi(whole)
	if err != nil || sphere < 0 {
		return Index{}, fmt.Errorf("bad sphere index %q", s)
	}
	idx := Index{Sphere: sphere}
	if hasFrac {
		wave, err := strconv.Atoi(frac)
		if err != nil || wave < 0 {
			return Index{}, fmt.Errorf("bad sphere index %q", s)
		}
		idx.Wave = wave
	}
	return idx, nil
}

// Less orders by integer sphere, then wave.
func (i Index) Less(j Index) bool {
	if i.Sphere != j.Sphere {
		return i.Sphere < j.Sphere
	}
	return i.Wave < j.Wave
}

// IsFractional reports whether this is a partial wave.
func (i Index) IsFractional() bool {
	return i.Wave != 0
}

func (i Index) String() string {
	if i.Wave == 0 {
		return strconv.Itoa(i.Sphere)
	}
	return fmt.Sprintf("%d.%d", i.Sphere, i.Wave)
}

// Entry is one reconstructed sphere: the locations placed in it plus the
// cumulative state expected once it is reached. Accessible sets and the
// inventory are always cumulative, whichever encoding the file used.
type Entry struct {
	Index               Index
	Locations           []string
	AccessibleLocations []string
	AccessibleRegions   []string
	Inventory           map[string]int
}

// EventType distinguishes the recorded event kinds.
type EventType string

const (
	EventStateUpdate     EventType = "state_update"
	EventCheckedLocation EventType = "checked_location"
	EventConnected       EventType = "connected"
)

// Event is one recorded log line in file order, as the replay validator
// consumes it.
type Event struct {
	Type EventType

	// Index is set for state_update events.
	Index Index

	// Location is set for checked_location events.
	Location string
}

// Log is a fully parsed sphere log.
type Log struct {
	Format  Format
	Player  string
	Entries []Entry // sorted by Index ascending
	Events  []Event // original file order
}

// EntryAt returns the entry with the given index, nil when absent.
func (l *Log) EntryAt(idx Index) *Entry {
	for i := range l.Entries {
		if l.Entries[i].Index == idx {
			return &l.Entries[i]
		}
	}
	return nil
}

// CurrentSphere scans the sorted entries for the first one still holding
// an unchecked location: that entry is current and incomplete. When every
// entry is fully checked the last entry is current and complete. The
// boolean is true when the current sphere is complete.
func (l *Log) CurrentSphere(checked map[string]struct{}) (*Entry, bool) {
	if len(l.Entries) == 0 {
		return nil, false
	}
	for i := range l.Entries {
		for _, loc := range l.Entries[i].Locations {
			if _, done := checked[loc]; !done {
				return &l.Entries[i], false
			}
		}
	}
	return &l.Entries[len(l.Entries)-1], true
}

// sortEntries orders entries by sphere index ascending, stably.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Index.Less(entries[j].Index)
	})
}
