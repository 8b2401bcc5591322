// Package replay drives the engine with commands derived from a recorded
// sphere log and verifies that the live reachability matches the log's
// expectations at every step, producing a structured mismatch report.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/spherelog"
	"github.com/quillback/spheretrace/internal/world"
)

// MismatchKind distinguishes the two failure shapes a replay can record.
type MismatchKind string

const (
	// MismatchPrecheck: a location the log expects to be checkable was not
	// reachable in the live engine. Hard failure; the replay aborts.
	MismatchPrecheck MismatchKind = "precheck"

	// MismatchAccessible: after checking a sphere's locations, the live
	// accessible sets differ from the log's expected sets.
	MismatchAccessible MismatchKind = "accessible-diff"
)

// Mismatch is one recorded divergence, with the inventory the engine held
// at the time so the divergence can be diagnosed offline.
type Mismatch struct {
	Kind   MismatchKind    `json:"kind"`
	Sphere spherelog.Index `json:"-"`
	Index  string          `json:"sphere"`

	// Location is set for precheck mismatches.
	Location string `json:"location,omitempty"`

	// Expected-but-not-reachable and reachable-but-not-expected sets.
	MissingFromState []string `json:"missing_from_state,omitempty"`
	ExtraInState     []string `json:"extra_in_state,omitempty"`
	MissingRegions   []string `json:"missing_regions,omitempty"`
	ExtraRegions     []string `json:"extra_regions,omitempty"`

	Inventory map[string]int `json:"inventory"`
}

// SphereResult summarizes one state_update event.
type SphereResult struct {
	Sphere     string `json:"sphere"`
	Passed     bool   `json:"passed"`
	Aborted    bool   `json:"aborted"`
	Checked    int    `json:"checked"`
	Mismatches int    `json:"mismatches"`
}

// Report is the replay outcome, suitable for CI inspection.
type Report struct {
	Passed          bool           `json:"passed"`
	Aborted         bool           `json:"aborted"`
	Mismatches      []Mismatch     `json:"mismatches"`
	SphereResults   []SphereResult `json:"sphere_results"`
	ProcessedEvents int            `json:"processed_events"`
	TotalEvents     int            `json:"total_events"`
}

// Outcome renders the report's terminal state for humans.
func (r *Report) Outcome() string {
	switch {
	case r.Aborted:
		return "aborted (pre-check violation)"
	case r.Passed:
		return "passed"
	default:
		return fmt.Sprintf("failed with %d mismatches", len(r.Mismatches))
	}
}

// Options configure a replay run.
type Options struct {
	// World and Player are loaded into the engine before the first event.
	World  *world.World
	Player string

	// StopOnFirstError halts the replay at the first recorded mismatch
	// instead of aggregating all of them.
	StopOnFirstError bool

	// PingTimeout bounds each ping barrier; zero waits indefinitely.
	PingTimeout time.Duration
}

// Run replays the log against a running engine.
//
// For each state_update event: pre-check every sphere location against the
// live snapshot, check them all, ping to a consistent snapshot, then diff
// the accessible sets against the log's expectations. A pre-check failure
// aborts the replay; a diff mismatch is recorded and, without the
// stop-on-first-error policy, the replay continues.
//
// Cancellation is cooperative: the context is consulted between events,
// never mid-command.
func Run(ctx context.Context, eng *engine.Engine, log *spherelog.Log, opts Options) (*Report, error) {
	report := &Report{TotalEvents: len(log.Events)}

	if opts.World == nil {
		return nil, fmt.Errorf("replay: no world provided")
	}
	if err := eng.LoadRules(ctx, opts.World, opts.Player); err != nil {
		return nil, fmt.Errorf("replay: load rules: %w", err)
	}

	for _, ev := range log.Events {
		if ctx.Err() != nil {
			report.Aborted = true
			break
		}

		var stop bool
		var err error
		switch ev.Type {
		case spherelog.EventStateUpdate:
			stop, err = runSphere(ctx, eng, log, ev.Index, opts, report)
		case spherelog.EventCheckedLocation:
			stop, err = runCheck(ctx, eng, ev.Location, opts, report)
		case spherelog.EventConnected:
			// Connection events carry no state to verify.
		}
		if err != nil {
			return nil, err
		}

		report.ProcessedEvents++
		if stop {
			break
		}
	}

	report.Passed = !report.Aborted && len(report.Mismatches) == 0
	slog.Info("replay finished",
		"outcome", report.Outcome(),
		"processed", report.ProcessedEvents,
		"total", report.TotalEvents,
		"mismatches", len(report.Mismatches),
	)
	return report, nil
}

// runSphere processes one state_update event. Returns stop=true when the
// replay must halt.
func runSphere(ctx context.Context, eng *engine.Engine, log *spherelog.Log, idx spherelog.Index, opts Options, report *Report) (bool, error) {
	entry := log.EntryAt(idx)
	if entry == nil {
		return false, fmt.Errorf("replay: no sphere entry for index %s", idx)
	}

	result := SphereResult{Sphere: idx.String()}

	// Reach a consistent snapshot before pre-checking.
	if err := eng.Ping(ctx, opts.PingTimeout); err != nil {
		return false, fmt.Errorf("replay: ping before sphere %s: %w", idx, err)
	}
	snap := eng.Snapshot()

	for _, loc := range entry.Locations {
		if !snap.LocationReachable(loc) {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Kind:      MismatchPrecheck,
				Sphere:    idx,
				Index:     idx.String(),
				Location:  loc,
				Inventory: snap.Inventory,
			})
			result.Aborted = true
			result.Mismatches++
			report.SphereResults = append(report.SphereResults, result)
			report.Aborted = true
			slog.Error("replay pre-check failed",
				"sphere", idx.String(),
				"location", loc,
			)
			return true, nil
		}
	}

	for _, loc := range entry.Locations {
		if err := eng.CheckLocation(ctx, loc); err != nil {
			return false, fmt.Errorf("replay: check %q in sphere %s: %w", loc, idx, err)
		}
		result.Checked++
	}

	if err := eng.Ping(ctx, opts.PingTimeout); err != nil {
		return false, fmt.Errorf("replay: ping after sphere %s: %w", idx, err)
	}
	snap = eng.Snapshot()

	missingLocs, extraLocs := diffSets(entry.AccessibleLocations, snap.AccessibleLocations())
	missingRegions, extraRegions := diffSets(entry.AccessibleRegions, snap.AccessibleRegions())

	if len(missingLocs)+len(extraLocs)+len(missingRegions)+len(extraRegions) > 0 {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Kind:             MismatchAccessible,
			Sphere:           idx,
			Index:            idx.String(),
			MissingFromState: missingLocs,
			ExtraInState:     extraLocs,
			MissingRegions:   missingRegions,
			ExtraRegions:     extraRegions,
			Inventory:        snap.Inventory,
		})
		result.Mismatches++
		slog.Warn("replay accessible-set mismatch",
			"sphere", idx.String(),
			"missing", len(missingLocs),
			"extra", len(extraLocs),
		)
	}

	result.Passed = result.Mismatches == 0
	report.SphereResults = append(report.SphereResults, result)

	return opts.StopOnFirstError && result.Mismatches > 0, nil
}

// runCheck processes one checked_location event: validate accessibility
// against the live snapshot, then check. Checking a location already
// checked by its sphere's state_update is a no-op.
func runCheck(ctx context.Context, eng *engine.Engine, location string, opts Options, report *Report) (bool, error) {
	if err := eng.Ping(ctx, opts.PingTimeout); err != nil {
		return false, fmt.Errorf("replay: ping before check %q: %w", location, err)
	}
	snap := eng.Snapshot()

	if !snap.LocationReachable(location) && !snap.Checked(location) {
		report.Mismatches = append(report.Mismatches, Mismatch{
			Kind:      MismatchPrecheck,
			Location:  location,
			Inventory: snap.Inventory,
		})
		report.Aborted = true
		slog.Error("replay pre-check failed", "location", location)
		return true, nil
	}

	if err := eng.CheckLocation(ctx, location); err != nil {
		return false, fmt.Errorf("replay: check %q: %w", location, err)
	}
	return false, nil
}

// diffSets returns expected-but-absent and present-but-unexpected names.
// Both inputs are sorted; the outputs preserve that order.
func diffSets(expected, actual []string) (missing, extra []string) {
	inExpected := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		inExpected[name] = struct{}{}
	}
	inActual := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		inActual[name] = struct{}{}
	}
	for _, name := range expected {
		if _, ok := inActual[name]; !ok {
			missing = append(missing, name)
		}
	}
	for _, name := range actual {
		if _, ok := inExpected[name]; !ok {
			extra = append(extra, name)
		}
	}
	return missing, extra
}
