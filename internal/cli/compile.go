package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/world"
)

// worldDoc mirrors the JSON interchange format the world loader reads, so
// compile output feeds straight back into validate, replay, and serve.
type worldDoc struct {
	Game        string                        `json:"game,omitempty"`
	StartRegion string                        `json:"start_region"`
	Settings    *settingsDoc                  `json:"settings,omitempty"`
	Regions     map[string]regionDoc          `json:"regions"`
	Items       map[string]map[string]itemDoc `json:"items,omitempty"`
}

type settingsDoc struct {
	AssumeBidirectionalExits bool `json:"assume_bidirectional_exits"`
}

type regionDoc struct {
	Exits     []exitDoc     `json:"exits,omitempty"`
	Locations []locationDoc `json:"locations,omitempty"`
}

type exitDoc struct {
	Name            string          `json:"name"`
	ConnectedRegion string          `json:"connected_region"`
	AccessRule      json.RawMessage `json:"access_rule,omitempty"`
}

type locationDoc struct {
	Name       string          `json:"name"`
	Item       string          `json:"item,omitempty"`
	AccessRule json.RawMessage `json:"access_rule,omitempty"`
}

type itemDoc struct {
	Advancement bool     `json:"advancement,omitempty"`
	Groups      []string `json:"groups,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "compile <world.cue>",
		Short: "Compile a CUE world document to interchange JSON",
		Long: `Compile a CUE world document into the JSON interchange format that the
other commands consume. The output round-trips through the JSON loader and
its schema.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, cmd, args[0], outPath)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runCompile(opts *RootOptions, cmd *cobra.Command, path, outPath string) error {
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

	doc, err := encodeWorldDoc(w)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "encode world", err)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "marshal world", err)
	}
	payload = append(payload, '\n')

	if outPath != "" {
		if err := os.WriteFile(outPath, payload, 0o644); err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
		formatter.VerboseLog("wrote %s (%d bytes)", outPath, len(payload))
		return nil
	}

	_, err = formatter.Writer.Write(payload)
	return err
}

// encodeWorldDoc renders a finalized world back into document form. Exits
// and locations keep declaration order; region and item maps serialize in
// key order.
func encodeWorldDoc(w *world.World) (*worldDoc, error) {
	doc := &worldDoc{
		Game:        w.Game,
		StartRegion: w.Start,
		Regions:     make(map[string]regionDoc, len(w.Regions)),
	}
	if w.Settings.AssumeBidirectionalExits {
		doc.Settings = &settingsDoc{AssumeBidirectionalExits: true}
	}

	for name, region := range w.Regions {
		rd := regionDoc{}
		for _, exit := range region.Exits {
			rule, err := encodeRule(exit.Rule)
			if err != nil {
				return nil, fmt.Errorf("exit %q: %w", exit.Name, err)
			}
			rd.Exits = append(rd.Exits, exitDoc{
				Name:            exit.Name,
				ConnectedRegion: exit.Connected,
				AccessRule:      rule,
			})
		}
		for _, loc := range region.Locations {
			rule, err := encodeRule(loc.Rule)
			if err != nil {
				return nil, fmt.Errorf("location %q: %w", loc.Name, err)
			}
			rd.Locations = append(rd.Locations, locationDoc{
				Name:       loc.Name,
				Item:       loc.Item,
				AccessRule: rule,
			})
		}
		doc.Regions[name] = rd
	}

	if len(w.Items) > 0 {
		doc.Items = make(map[string]map[string]itemDoc, len(w.Items))
		for player, table := range w.Items {
			defs := make(map[string]itemDoc, len(table))
			for item, def := range table {
				groups := append([]string(nil), def.Groups...)
				sort.Strings(groups)
				defs[item] = itemDoc{Advancement: def.Advancement, Groups: groups}
			}
			doc.Items[player] = defs
		}
	}

	return doc, nil
}

// encodeRule returns nil for a nil rule so omitempty drops the field
// instead of emitting JSON null.
func encodeRule(r rules.Rule) (json.RawMessage, error) {
	if r == nil {
		return nil, nil
	}
	return rules.Encode(r)
}
