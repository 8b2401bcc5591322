package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/pathfind"
	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/sweep"
)

// NewPathCommand creates the path command.
func NewPathCommand(rootOpts *RootOptions) *cobra.Command {
	var items []string

	cmd := &cobra.Command{
		Use:   "path <world-file> <source> <target>",
		Short: "Find the shortest accessible route between two regions",
		Long: `Compute reachability for a given inventory and print the shortest route
from source to target over the traversable part of the world graph.

Inventory items are passed with repeated --item flags, either as a bare
name or as name=count.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPath(rootOpts, cmd, args[0], args[1], args[2], items)
		},
	}

	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "inventory item, name or name=count (repeatable)")
	return cmd
}

func runPath(opts *RootOptions, cmd *cobra.Command, worldPath, source, target string, items []string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	w, err := loadWorldFile(formatter, worldPath)
	if err != nil {
		return err
	}

	inventory, err := parseInventory(items)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --item flag", err)
	}

	logic, err := sweep.Compile(w, rules.NewRegistry())
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return WrapExitError(ExitFailure, "compile world rules", err)
	}

	checked := map[string]struct{}{}
	reach, err := logic.Sweep(inventory, checked)
	if err != nil {
		return WrapExitError(ExitFailure, "accessibility sweep", err)
	}
	snap := sweep.NewSnapshot(1, inventory, checked, reach)

	path, err := pathfind.FindPath(logic, snap, source, target)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "path query", err)
	}

	if path == nil {
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeNoRoute, "no accessible route", nil)
		} else {
			fmt.Fprintf(formatter.Writer, "no accessible route from %s to %s\n", source, target)
		}
		return NewExitError(ExitFailure, "no accessible route")
	}

	if formatter.Format == "json" {
		return formatter.JSON(path)
	}

	fmt.Fprintf(formatter.Writer, "%s (%d hops)\n", strings.Join(path.Steps, " -> "), path.Length)
	if path.NextExit != "" {
		fmt.Fprintf(formatter.Writer, "leave via: %s\n", path.NextExit)
	}
	return nil
}

// parseInventory turns --item flags into an inventory map. "Lamp" means
// one copy, "Bomb=3" means three.
func parseInventory(items []string) (map[string]int, error) {
	inventory := make(map[string]int, len(items))
	for _, spec := range items {
		name, countStr, hasCount := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty item name in %q", spec)
		}
		count := 1
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(countStr))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("bad item count in %q", spec)
			}
			count = n
		}
		inventory[name] += count
	}
	return inventory, nil
}
