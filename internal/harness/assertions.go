package harness

import (
	"fmt"

	"github.com/quillback/spheretrace/internal/sweep"
)

// evaluateAssertions checks every assertion against the final snapshot and
// the replay report, appending failures to the result.
func evaluateAssertions(scenario *Scenario, result *Result, snap *sweep.Snapshot) {
	for i, a := range scenario.Assertions {
		if msg := evaluateAssertion(&a, result, snap); msg != "" {
			result.Failures = append(result.Failures, fmt.Sprintf("assertions[%d]: %s", i, msg))
		}
	}
}

func evaluateAssertion(a *Assertion, result *Result, snap *sweep.Snapshot) string {
	switch a.Type {
	case AssertLocationReachable:
		if !snap.LocationReachable(a.Location) {
			return fmt.Sprintf("location %q is not reachable", a.Location)
		}

	case AssertLocationUnreachable:
		if snap.LocationReachable(a.Location) {
			return fmt.Sprintf("location %q is reachable", a.Location)
		}

	case AssertRegionReachable:
		if !snap.RegionReachable(a.Region) {
			return fmt.Sprintf("region %q is not reachable", a.Region)
		}

	case AssertInventory:
		if got := snap.Inventory[a.Item]; got != a.Count {
			return fmt.Sprintf("inventory %q is %d, want %d", a.Item, got, a.Count)
		}

	case AssertCheckedCount:
		if got := len(snap.CheckedLocations); got != a.Count {
			return fmt.Sprintf("checked %d locations, want %d", got, a.Count)
		}

	case AssertReplayOutcome:
		if result.Report == nil {
			return "no replay report"
		}
		if got := result.Report.Outcome(); got != a.Outcome {
			return fmt.Sprintf("replay outcome %q, want %q", got, a.Outcome)
		}
	}
	return ""
}
