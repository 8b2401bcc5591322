package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/harness"
)

// ScenarioOutcome is one scenario's result in the test command payload.
type ScenarioOutcome struct {
	Scenario string   `json:"scenario"`
	Passed   bool     `json:"passed"`
	Failures []string `json:"failures,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <scenario.yaml>...",
		Short: "Run verification scenarios",
		Long: `Run one or more YAML verification scenarios against a fresh engine each
and report per-scenario pass/fail. Exits 1 when any scenario fails.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(rootOpts, cmd, args)
		},
	}
}

func runTest(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	outcomes := make([]ScenarioOutcome, 0, len(paths))
	failed := 0

	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			_ = formatter.Error(ErrCodeParse, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("load scenario %s", path), err)
		}

		result, err := harness.Run(scenario)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("run scenario %s", path), err)
		}

		outcome := ScenarioOutcome{
			Scenario: result.Scenario,
			Passed:   result.Passed(),
			Failures: result.Failures,
		}
		if !outcome.Passed {
			failed++
		}
		outcomes = append(outcomes, outcome)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, outcome := range outcomes {
			if outcome.Passed {
				fmt.Fprintf(formatter.Writer, "PASS %s\n", outcome.Scenario)
				continue
			}
			fmt.Fprintf(formatter.Writer, "FAIL %s\n", outcome.Scenario)
			for _, failure := range outcome.Failures {
				fmt.Fprintf(formatter.Writer, "  %s\n", failure)
			}
		}
		fmt.Fprintf(formatter.Writer, "%d scenarios, %d failed\n", len(outcomes), failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(outcomes)))
	}
	return nil
}
