package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// WorldSummary is the validate command's payload.
type WorldSummary struct {
	Game      string `json:"game,omitempty"`
	Start     string `json:"start"`
	Regions   int    `json:"regions"`
	Locations int    `json:"locations"`
	Exits     int    `json:"exits"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <world-file>",
		Short: "Validate a world document",
		Long: `Validate a world document (.json, .yaml, or .cue) without running
anything: parse it, check the region graph and access rules, and print a
summary.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0])
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	w, err := loadWorldFile(formatter, path)
	if err != nil {
		return err
	}

	summary := WorldSummary{
		Game:      w.Game,
		Start:     w.Start,
		Regions:   len(w.Regions),
		Locations: countLocations(w),
		Exits:     countExits(w),
	}

	if formatter.Format == "json" {
		return formatter.JSON(summary)
	}

	fmt.Fprintln(formatter.Writer, "world valid")
	if summary.Game != "" {
		fmt.Fprintf(formatter.Writer, "  game:      %s\n", summary.Game)
	}
	fmt.Fprintf(formatter.Writer, "  start:     %s\n", summary.Start)
	fmt.Fprintf(formatter.Writer, "  regions:   %d\n", summary.Regions)
	fmt.Fprintf(formatter.Writer, "  locations: %d\n", summary.Locations)
	fmt.Fprintf(formatter.Writer, "  exits:     %d\n", summary.Exits)
	return nil
}
