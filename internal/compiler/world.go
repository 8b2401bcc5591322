// Package compiler turns CUE world-authoring documents into world.World
// values. CUE gives world authors defaults, constraints, and comments that
// raw JSON lacks; the compiled output is the same World the JSON loader
// produces.
package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/quillback/spheretrace/internal/rules"
	"github.com/quillback/spheretrace/internal/world"
)

// CompileError is a positioned compilation failure.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileWorldFile reads and compiles a CUE world document from disk.
// The document's top-level "world" struct is the compilation root.
func CompileWorldFile(path string) (*world.World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world document: %w", err)
	}
	return CompileWorldSource(string(data), path)
}

// CompileWorldSource compiles CUE source text. filename seeds error
// positions.
func CompileWorldSource(src, filename string) (*world.World, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("world"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "world",
			Message: "top-level world struct is required",
			Pos:     v.Pos(),
		}
	}
	return CompileWorld(root)
}

// CompileWorld parses a CUE value holding the world struct.
func CompileWorld(v cue.Value) (*world.World, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	w := &world.World{Regions: make(map[string]*world.Region)}

	var err error
	if w.Game, err = optionalString(v, "game"); err != nil {
		return nil, err
	}
	if w.Start, err = optionalString(v, "start"); err != nil {
		return nil, err
	}

	settings := v.LookupPath(cue.ParsePath("settings.assume_bidirectional_exits"))
	if settings.Exists() {
		flag, err := settings.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		w.Settings.AssumeBidirectionalExits = flag
	}

	regions := v.LookupPath(cue.ParsePath("regions"))
	if !regions.Exists() {
		return nil, &CompileError{
			Field:   "regions",
			Message: "regions are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := regions.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		region, err := compileRegion(iter.Value())
		if err != nil {
			return nil, err
		}
		w.Regions[iter.Selector().Unquoted()] = region
	}

	if w.Items, err = compileItems(v.LookupPath(cue.ParsePath("items"))); err != nil {
		return nil, err
	}

	if err := w.Finalize(); err != nil {
		return nil, &CompileError{
			Field:   "world",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return w, nil
}

func compileRegion(v cue.Value) (*world.Region, error) {
	region := &world.Region{}

	exits := v.LookupPath(cue.ParsePath("exits"))
	if exits.Exists() {
		iter, err := exits.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			exit, err := compileExit(iter.Value())
			if err != nil {
				return nil, err
			}
			region.Exits = append(region.Exits, exit)
		}
	}

	locations := v.LookupPath(cue.ParsePath("locations"))
	if locations.Exists() {
		iter, err := locations.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			loc, err := compileLocation(iter.Value())
			if err != nil {
				return nil, err
			}
			region.Locations = append(region.Locations, loc)
		}
	}

	return region, nil
}

func compileExit(v cue.Value) (*world.Exit, error) {
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	connected, err := requiredString(v, "connected_region")
	if err != nil {
		return nil, err
	}
	rule, err := compileRule(v)
	if err != nil {
		return nil, err
	}
	return &world.Exit{Name: name, Connected: connected, Rule: rule}, nil
}

func compileLocation(v cue.Value) (*world.Location, error) {
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	item, err := optionalString(v, "item")
	if err != nil {
		return nil, err
	}
	rule, err := compileRule(v)
	if err != nil {
		return nil, err
	}
	return &world.Location{Name: name, Item: item, Rule: rule}, nil
}

// compileRule reads the access_rule field through CUE's JSON encoding and
// hands it to the shared rule decoder, so CUE and JSON documents accept
// exactly the same rule shapes.
func compileRule(v cue.Value) (rules.Rule, error) {
	ruleVal := v.LookupPath(cue.ParsePath("access_rule"))
	if !ruleVal.Exists() {
		return nil, nil
	}
	data, err := ruleVal.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	rule, err := rules.Decode(data)
	if err != nil {
		return nil, &CompileError{
			Field:   "access_rule",
			Message: err.Error(),
			Pos:     ruleVal.Pos(),
		}
	}
	return rule, nil
}

func compileItems(v cue.Value) (map[string]map[string]world.ItemDef, error) {
	if !v.Exists() {
		return nil, nil
	}

	items := make(map[string]map[string]world.ItemDef)
	playerIter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for playerIter.Next() {
		player := playerIter.Selector().Unquoted()
		table := make(map[string]world.ItemDef)

		itemIter, err := playerIter.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for itemIter.Next() {
			var def world.ItemDef
			itemVal := itemIter.Value()

			adv := itemVal.LookupPath(cue.ParsePath("advancement"))
			if adv.Exists() {
				if def.Advancement, err = adv.Bool(); err != nil {
					return nil, formatCUEError(err)
				}
			}
			groups := itemVal.LookupPath(cue.ParsePath("groups"))
			if groups.Exists() {
				groupIter, err := groups.List()
				if err != nil {
					return nil, formatCUEError(err)
				}
				for groupIter.Next() {
					group, err := groupIter.Value().String()
					if err != nil {
						return nil, formatCUEError(err)
					}
					def.Groups = append(def.Groups, group)
				}
			}
			table[itemIter.Selector().Unquoted()] = def
		}
		items[player] = table
	}
	return items, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", nil
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// formatCUEError extracts position info from CUE's multi-error values.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
