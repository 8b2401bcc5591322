package spherelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/unicode/norm"
)

// maxLineBytes bounds a single log line. Verbose entries for large worlds
// run long; 4 MiB is far beyond anything observed.
const maxLineBytes = 4 << 20

// rawLine mirrors one JSON log line. Delta fields stay nil when their keys
// are absent, which is what format detection keys off.
type rawLine struct {
	Type        string               `json:"type"`
	SphereIndex string               `json:"sphere_index"`
	PlayerData  map[string]rawPlayer `json:"player_data"`
	Location    *struct {
		Name string `json:"name"`
	} `json:"location"`
}

type rawPlayer struct {
	Locations []string `json:"locations"`

	// Verbose (absolute) fields.
	InventoryDetails    map[string]int `json:"inventory_details"`
	AccessibleLocations []string       `json:"accessible_locations"`
	AccessibleRegions   []string       `json:"accessible_regions"`

	// Incremental (delta) fields.
	NewInventoryDetails    map[string]int `json:"new_inventory_details"`
	NewAccessibleLocations []string       `json:"new_accessible_locations"`
	NewAccessibleRegions   []string       `json:"new_accessible_regions"`
}

// Open reads a sphere log from disk, transparently decompressing
// .zst files.
func Open(path, player string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sphere log: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open zstd sphere log: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return Parse(r, player)
}

// Parse reads a line-delimited sphere log for one player.
//
// The encoding is detected from the first state_update entry and fixed for
// the rest of the file. Unparsable lines are skipped with a warning; a log
// yielding zero valid state entries is a hard failure.
//
// When player is empty and the log carries data for exactly one player,
// that player is used; multiple players without an explicit id is an error.
func Parse(r io.Reader, player string) (*Log, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	log := &Log{Format: FormatUnknown, Player: player}
	baseline := newTracker()
	overlay := newTracker()
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			slog.Warn("skipping unparsable sphere log line", "line", lineNo, "error", err)
			continue
		}

		switch EventType(raw.Type) {
		case EventStateUpdate:
			if err := log.ingestState(&raw, baseline, overlay); err != nil {
				slog.Warn("skipping bad state_update", "line", lineNo, "error", err)
			}

		case EventCheckedLocation:
			if raw.Location == nil || raw.Location.Name == "" {
				slog.Warn("skipping checked_location without a location", "line", lineNo)
				continue
			}
			log.Events = append(log.Events, Event{
				Type:     EventCheckedLocation,
				Location: norm.NFC.String(raw.Location.Name),
			})

		case EventConnected:
			log.Events = append(log.Events, Event{Type: EventConnected})

		default:
			slog.Warn("skipping unknown event type", "line", lineNo, "type", raw.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sphere log: %w", err)
	}

	if len(log.Entries) == 0 {
		return nil, fmt.Errorf("sphere log contains no valid state entries")
	}

	sortEntries(log.Entries)
	return log, nil
}

// ingestState parses one state_update line and appends the reconstructed
// entry, updating the running accumulators for incremental logs.
func (l *Log) ingestState(raw *rawLine, baseline, overlay *tracker) error {
	idx, err := ParseIndex(raw.SphereIndex)
	if err != nil {
		return err
	}

	data, err := l.pickPlayer(raw.PlayerData)
	if err != nil {
		return err
	}

	if l.Format == FormatUnknown {
		l.Format = detectFormat(data)
	}

	entry := Entry{Index: idx, Locations: normalizeAll(data.Locations)}

	switch l.Format {
	case FormatVerbose:
		entry.Inventory = normalizeCounts(data.InventoryDetails)
		entry.AccessibleLocations = sortedNormalized(data.AccessibleLocations)
		entry.AccessibleRegions = sortedNormalized(data.AccessibleRegions)

	case FormatIncremental:
		deltas := &tracker{
			inventory: normalizeCounts(data.NewInventoryDetails),
			locations: toSet(normalizeAll(data.NewAccessibleLocations)),
			regions:   toSet(normalizeAll(data.NewAccessibleRegions)),
		}

		switch {
		case idx.Sphere == 0 && idx.Wave == 0:
			// Sphere 0 restarts the run: both trackers reset to its deltas.
			baseline.resetTo(deltas)
			overlay.clear()
			fillEntry(&entry, baseline)

		case !idx.IsFractional():
			// Integer spheres advance the baseline. The fractional overlay
			// is discarded so partial waves never pollute the baseline.
			baseline.merge(deltas)
			overlay.clear()
			fillEntry(&entry, baseline)

		default:
			overlay.merge(deltas)
			fillEntry(&entry, union(baseline, overlay))
		}

	default:
		return fmt.Errorf("state entry before format detection")
	}

	l.Entries = append(l.Entries, entry)
	l.Events = append(l.Events, Event{Type: EventStateUpdate, Index: idx})
	return nil
}

// pickPlayer selects the player record, binding the log to the first
// player seen when none was requested.
func (l *Log) pickPlayer(data map[string]rawPlayer) (*rawPlayer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("state entry carries no player data")
	}
	if l.Player == "" {
		if len(data) > 1 {
			return nil, fmt.Errorf("log has %d players; a player id is required", len(data))
		}
		for id := range data {
			l.Player = id
		}
	}
	p, ok := data[l.Player]
	if !ok {
		return nil, fmt.Errorf("state entry has no data for player %q", l.Player)
	}
	return &p, nil
}

// detectFormat sniffs the encoding from the first state entry: any delta
// key present means incremental.
func detectFormat(p *rawPlayer) Format {
	if p.NewInventoryDetails != nil || p.NewAccessibleLocations != nil || p.NewAccessibleRegions != nil {
		return FormatIncremental
	}
	return FormatVerbose
}

// tracker is one running accumulation of inventory counts and accessible
// sets. Incremental parsing keeps two: the integer-sphere baseline and the
// fractional overlay.
type tracker struct {
	inventory map[string]int
	locations map[string]struct{}
	regions   map[string]struct{}
}

func newTracker() *tracker {
	return &tracker{
		inventory: make(map[string]int),
		locations: make(map[string]struct{}),
		regions:   make(map[string]struct{}),
	}
}

func (t *tracker) clear() {
	t.inventory = make(map[string]int)
	t.locations = make(map[string]struct{})
	t.regions = make(map[string]struct{})
}

func (t *tracker) resetTo(other *tracker) {
	t.clear()
	t.merge(other)
}

// merge adds item counts and unions the accessible sets.
func (t *tracker) merge(other *tracker) {
	for item, count := range other.inventory {
		t.inventory[item] += count
	}
	for loc := range other.locations {
		t.locations[loc] = struct{}{}
	}
	for region := range other.regions {
		t.regions[region] = struct{}{}
	}
}

// union combines two trackers without mutating either.
func union(a, b *tracker) *tracker {
	out := newTracker()
	out.merge(a)
	out.merge(b)
	return out
}

// fillEntry copies a tracker's cumulative view into an entry.
func fillEntry(entry *Entry, t *tracker) {
	entry.Inventory = make(map[string]int, len(t.inventory))
	for item, count := range t.inventory {
		entry.Inventory[item] = count
	}
	entry.AccessibleLocations = setToSorted(t.locations)
	entry.AccessibleRegions = setToSorted(t.regions)
}

func normalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = norm.NFC.String(name)
	}
	return out
}

func sortedNormalized(names []string) []string {
	out := normalizeAll(names)
	sort.Strings(out)
	return out
}

func normalizeCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for item, count := range counts {
		out[norm.NFC.String(item)] += count
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
