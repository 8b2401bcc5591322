package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one verification scenario.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario verifies.
	Description string `yaml:"description"`

	// World is the world document path: .json, .yaml/.yml, or .cue.
	// Relative paths resolve against the scenario file's directory.
	World string `yaml:"world"`

	// Player selects the item table and sphere log player id.
	Player string `yaml:"player,omitempty"`

	// TokenPrefix seeds the deterministic command tokens, default "cmd".
	TokenPrefix string `yaml:"token_prefix,omitempty"`

	// Steps is a command script run after the world loads. Mutually
	// exclusive with Replay.
	Steps []Step `yaml:"steps,omitempty"`

	// Replay verifies a recorded sphere log instead of a script.
	Replay *ReplaySpec `yaml:"replay,omitempty"`

	// Assertions validate the final state and the replay outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted engine command.
type Step struct {
	// Command is one of add_item, check_location, clear_event_items,
	// recalculate_accessibility.
	Command string `yaml:"command"`

	// Item is the argument of add_item.
	Item string `yaml:"item,omitempty"`

	// Location is the argument of check_location.
	Location string `yaml:"location,omitempty"`

	// ExpectError names the error code this step must fail with. Empty
	// means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ReplaySpec points at a recorded sphere log.
type ReplaySpec struct {
	// Log is the sphere log path, .jsonl or .jsonl.zst. Relative paths
	// resolve against the scenario file's directory.
	Log string `yaml:"log"`

	// StopOnFirstError halts the replay at the first mismatch.
	StopOnFirstError bool `yaml:"stop_on_first_error,omitempty"`
}

// Step command constants.
const (
	StepAddItem     = "add_item"
	StepCheck       = "check_location"
	StepClearEvents = "clear_event_items"
	StepRecalculate = "recalculate_accessibility"
)

// Assertion validates one aspect of the run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Location is used by location_reachable / location_unreachable.
	Location string `yaml:"location,omitempty"`

	// Region is used by region_reachable.
	Region string `yaml:"region,omitempty"`

	// Item and Count are used by inventory.
	Item string `yaml:"item,omitempty"`

	// Count is used by inventory and checked_count.
	Count int `yaml:"count,omitempty"`

	// Outcome is used by replay_outcome, matching Report.Outcome.
	Outcome string `yaml:"outcome,omitempty"`
}

// Assertion type constants.
const (
	AssertLocationReachable   = "location_reachable"
	AssertLocationUnreachable = "location_unreachable"
	AssertRegionReachable     = "region_reachable"
	AssertInventory           = "inventory"
	AssertCheckedCount        = "checked_count"
	AssertReplayOutcome       = "replay_outcome"
)

// LoadScenario reads and validates a scenario file. Unknown YAML fields are
// rejected so a typo fails loudly instead of silently skipping a clause.
// World and log paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.World != "" && !filepath.IsAbs(scenario.World) {
		scenario.World = filepath.Join(base, scenario.World)
	}
	if scenario.Replay != nil && scenario.Replay.Log != "" && !filepath.IsAbs(scenario.Replay.Log) {
		scenario.Replay.Log = filepath.Join(base, scenario.Replay.Log)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.World == "" {
		return fmt.Errorf("world is required")
	}
	if _, err := os.Stat(s.World); err != nil {
		return fmt.Errorf("world file: %w", err)
	}

	if len(s.Steps) == 0 && s.Replay == nil {
		return fmt.Errorf("either steps or replay is required")
	}
	if len(s.Steps) > 0 && s.Replay != nil {
		return fmt.Errorf("steps and replay are mutually exclusive")
	}

	for i, step := range s.Steps {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if s.Replay != nil {
		if s.Replay.Log == "" {
			return fmt.Errorf("replay: log is required")
		}
		if _, err := os.Stat(s.Replay.Log); err != nil {
			return fmt.Errorf("replay log file: %w", err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(&a, s.Replay != nil); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step *Step) error {
	switch step.Command {
	case StepAddItem:
		if step.Item == "" {
			return fmt.Errorf("add_item requires item")
		}
	case StepCheck:
		if step.Location == "" {
			return fmt.Errorf("check_location requires location")
		}
	case StepClearEvents, StepRecalculate:
	case "":
		return fmt.Errorf("command is required")
	default:
		return fmt.Errorf("unknown command %q", step.Command)
	}
	return nil
}

func validateAssertion(a *Assertion, hasReplay bool) error {
	switch a.Type {
	case AssertLocationReachable, AssertLocationUnreachable:
		if a.Location == "" {
			return fmt.Errorf("%s requires location", a.Type)
		}
	case AssertRegionReachable:
		if a.Region == "" {
			return fmt.Errorf("region_reachable requires region")
		}
	case AssertInventory:
		if a.Item == "" {
			return fmt.Errorf("inventory requires item")
		}
		if a.Count < 0 {
			return fmt.Errorf("inventory count must be non-negative")
		}
	case AssertCheckedCount:
		if a.Count < 0 {
			return fmt.Errorf("checked_count must be non-negative")
		}
	case AssertReplayOutcome:
		if !hasReplay {
			return fmt.Errorf("replay_outcome requires a replay section")
		}
		if a.Outcome == "" {
			return fmt.Errorf("replay_outcome requires outcome")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
