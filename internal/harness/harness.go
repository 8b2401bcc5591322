package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/quillback/spheretrace/internal/compiler"
	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/replay"
	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/spherelog"
	"github.com/quillback/spheretrace/internal/store"
	"github.com/quillback/spheretrace/internal/testutil"
	"github.com/quillback/spheretrace/internal/world"
)

// pingTimeout bounds every barrier during a scenario run. A scenario that
// cannot reach a consistent snapshot in this window is wedged, not slow.
const pingTimeout = 10 * time.Second

// TraceEvent is one journaled command, as written to the golden file.
type TraceEvent struct {
	Command  string `json:"command"`
	Argument string `json:"argument,omitempty"`
	Token    string `json:"token"`
	Version  int64  `json:"version,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FinalState summarizes the last published snapshot. The digest is omitted:
// it hashes the same fields listed here, and golden files should diff in
// named fields, not opaque hashes.
type FinalState struct {
	Version             int64          `json:"version"`
	Inventory           map[string]int `json:"inventory"`
	CheckedLocations    []string       `json:"checked_locations"`
	AccessibleLocations []string       `json:"accessible_locations"`
	AccessibleRegions   []string       `json:"accessible_regions"`
}

// Result is one scenario execution.
type Result struct {
	Scenario string         `json:"scenario"`
	Trace    []TraceEvent   `json:"trace"`
	Final    *FinalState    `json:"final_state"`
	Report   *replay.Report `json:"replay_report,omitempty"`

	// Failures holds assertion failures; empty means the scenario passed.
	Failures []string `json:"-"`
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Run executes a scenario against a fresh engine and in-memory journal.
func Run(scenario *Scenario) (*Result, error) {
	w, err := loadWorld(scenario.World)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("scenario %q: open journal: %w", scenario.Name, err)
	}
	defer journal.Close()

	prefix := scenario.TokenPrefix
	if prefix == "" {
		prefix = "cmd"
	}
	eng := engine.New(rules.NewRegistry(),
		testutil.NewSequenceGenerator(prefix),
		engine.WithJournal(journal),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	result := &Result{Scenario: scenario.Name}

	if scenario.Replay != nil {
		if err := runReplay(ctx, eng, w, scenario, result); err != nil {
			return nil, err
		}
	} else {
		if err := runScript(ctx, eng, w, scenario, result); err != nil {
			return nil, err
		}
	}

	snap, err := eng.AwaitSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: final snapshot: %w", scenario.Name, err)
	}
	result.Final = &FinalState{
		Version:             snap.Version,
		Inventory:           snap.Inventory,
		CheckedLocations:    sortedKeys(snap.CheckedLocations),
		AccessibleLocations: snap.AccessibleLocations(),
		AccessibleRegions:   snap.AccessibleRegions(),
	}

	recs, err := journal.Commands(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: read trace: %w", scenario.Name, err)
	}
	result.Trace = make([]TraceEvent, len(recs))
	for i, rec := range recs {
		result.Trace[i] = TraceEvent{
			Command:  rec.Kind,
			Argument: rec.Argument,
			Token:    rec.Token,
			Version:  rec.Version,
			Error:    rec.Detail,
		}
	}

	evaluateAssertions(scenario, result, snap)
	return result, nil
}

func runScript(ctx context.Context, eng *engine.Engine, w *world.World, scenario *Scenario, result *Result) error {
	if err := eng.LoadRules(ctx, w, scenario.Player); err != nil {
		return fmt.Errorf("scenario %q: load rules: %w", scenario.Name, err)
	}

	for i, step := range scenario.Steps {
		var err error
		switch step.Command {
		case StepAddItem:
			err = eng.AddItem(ctx, step.Item)
		case StepCheck:
			err = eng.CheckLocation(ctx, step.Location)
		case StepClearEvents:
			err = eng.ClearEventItems(ctx)
		case StepRecalculate:
			err = eng.Recalculate(ctx)
		}

		switch {
		case step.ExpectError == "" && err != nil:
			return fmt.Errorf("scenario %q step %d: %w", scenario.Name, i, err)
		case step.ExpectError != "" && err == nil:
			result.Failures = append(result.Failures,
				fmt.Sprintf("step %d: expected error %s, command succeeded", i, step.ExpectError))
		case step.ExpectError != "" && err != nil:
			if code := string(engine.ErrorCode(err)); code != step.ExpectError {
				result.Failures = append(result.Failures,
					fmt.Sprintf("step %d: expected error %s, got %s", i, step.ExpectError, code))
			}
		}
	}

	return eng.Ping(ctx, pingTimeout)
}

func runReplay(ctx context.Context, eng *engine.Engine, w *world.World, scenario *Scenario, result *Result) error {
	log, err := spherelog.Open(scenario.Replay.Log, scenario.Player)
	if err != nil {
		return fmt.Errorf("scenario %q: %w", scenario.Name, err)
	}

	report, err := replay.Run(ctx, eng, log, replay.Options{
		World:            w,
		Player:           scenario.Player,
		StopOnFirstError: scenario.Replay.StopOnFirstError,
		PingTimeout:      pingTimeout,
	})
	if err != nil {
		return fmt.Errorf("scenario %q: replay: %w", scenario.Name, err)
	}
	result.Report = report
	return nil
}

// loadWorld dispatches on extension; CUE documents go through the compiler,
// everything else through the document loader.
func loadWorld(path string) (*world.World, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return compiler.CompileWorldFile(path)
	}
	return world.Load(path)
}

func sortedKeys(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
