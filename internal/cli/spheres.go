package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/spherelog"
)

// SphereLogSummary is the spheres command's payload.
type SphereLogSummary struct {
	Format  string         `json:"format"`
	Player  string         `json:"player"`
	Events  int            `json:"events"`
	Spheres []SphereDetail `json:"spheres"`
}

// SphereDetail summarizes one reconstructed sphere entry.
type SphereDetail struct {
	Sphere              string         `json:"sphere"`
	Locations           []string       `json:"locations"`
	AccessibleLocations int            `json:"accessible_locations"`
	AccessibleRegions   int            `json:"accessible_regions"`
	Inventory           map[string]int `json:"inventory"`
}

// NewSpheresCommand creates the spheres command.
func NewSpheresCommand(rootOpts *RootOptions) *cobra.Command {
	var player string

	cmd := &cobra.Command{
		Use:   "spheres <log-file>",
		Short: "Parse a sphere log and summarize its entries",
		Long: `Parse a recorded sphere log (.jsonl, optionally .zst compressed),
reconstruct the cumulative state per sphere, and print one line per entry.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpheres(rootOpts, cmd, args[0], player)
		},
	}

	cmd.Flags().StringVarP(&player, "player", "p", "", "player id (required for multi-player logs)")
	return cmd
}

func runSpheres(opts *RootOptions, cmd *cobra.Command, path, player string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("sphere log not found: %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("sphere log not found: %s", path))
	}

	log, err := spherelog.Open(path, player)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid sphere log", err)
	}

	summary := SphereLogSummary{
		Format: log.Format.String(),
		Player: log.Player,
		Events: len(log.Events),
	}
	for _, entry := range log.Entries {
		summary.Spheres = append(summary.Spheres, SphereDetail{
			Sphere:              entry.Index.String(),
			Locations:           entry.Locations,
			AccessibleLocations: len(entry.AccessibleLocations),
			AccessibleRegions:   len(entry.AccessibleRegions),
			Inventory:           entry.Inventory,
		})
	}

	if formatter.Format == "json" {
		return formatter.JSON(summary)
	}

	fmt.Fprintf(formatter.Writer, "format: %s, player: %s, %d events, %d spheres\n",
		summary.Format, summary.Player, summary.Events, len(summary.Spheres))
	for _, sphere := range summary.Spheres {
		fmt.Fprintf(formatter.Writer, "  sphere %-5s %d placed, %d locations / %d regions accessible\n",
			sphere.Sphere, len(sphere.Locations), sphere.AccessibleLocations, sphere.AccessibleRegions)
	}
	return nil
}
