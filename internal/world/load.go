package world

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/quillback/spheretrace/internal/rules"
)

//go:embed schema.json
var schemaJSON string

// documentSchema is compiled once at package init; the schema is embedded,
// so a compile failure is a programming error.
var documentSchema = jsonschema.MustCompileString("world/schema.json", schemaJSON)

// document mirrors the on-disk world description for both JSON and YAML.
type document struct {
	Game        string `json:"game" yaml:"game"`
	StartRegion string `json:"start_region" yaml:"start_region"`
	Settings    struct {
		AssumeBidirectionalExits bool `json:"assume_bidirectional_exits" yaml:"assume_bidirectional_exits"`
	} `json:"settings" yaml:"settings"`
	Regions map[string]regionDoc          `json:"regions" yaml:"regions"`
	Items   map[string]map[string]itemDoc `json:"items" yaml:"items"`
}

type regionDoc struct {
	Exits     []exitDoc     `json:"exits" yaml:"exits"`
	Locations []locationDoc `json:"locations" yaml:"locations"`
}

type exitDoc struct {
	Name            string `json:"name" yaml:"name"`
	ConnectedRegion string `json:"connected_region" yaml:"connected_region"`
	AccessRule      any    `json:"access_rule" yaml:"access_rule"`
}

type locationDoc struct {
	Name       string `json:"name" yaml:"name"`
	AccessRule any    `json:"access_rule" yaml:"access_rule"`
	Item       string `json:"item" yaml:"item"`
}

type itemDoc struct {
	Advancement bool     `json:"advancement" yaml:"advancement"`
	Groups      []string `json:"groups" yaml:"groups"`
}

// Load reads a world description file, dispatching on extension:
// .json (schema-validated), .yaml/.yml.
func Load(path string) (*World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported world file extension %q", filepath.Ext(path))
	}
}

// ParseJSON decodes and validates a JSON world document.
// The document is checked against the embedded schema before decoding so
// shape errors carry JSON-pointer locations instead of Go decode noise.
func ParseJSON(data []byte) (*World, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("parse world document: %w", err)
	}
	if err := documentSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("world document failed schema validation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode world document: %w", err)
	}
	return fromDocument(&doc)
}

// ParseYAML decodes a YAML world document. Structural validation happens in
// Finalize; the JSON schema only applies to the JSON interchange format.
func ParseYAML(data []byte) (*World, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode world document: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("world document defines no regions")
	}
	return fromDocument(&doc)
}

// fromDocument builds and finalizes a World from the decoded document.
func fromDocument(doc *document) (*World, error) {
	w := &World{
		Game:    doc.Game,
		Start:   doc.StartRegion,
		Regions: make(map[string]*Region, len(doc.Regions)),
		Items:   make(map[string]map[string]ItemDef, len(doc.Items)),
	}
	w.Settings.AssumeBidirectionalExits = doc.Settings.AssumeBidirectionalExits

	for name, rd := range doc.Regions {
		region := &Region{Name: name}
		for _, ed := range rd.Exits {
			rule, err := rules.DecodeAny(ed.AccessRule)
			if err != nil {
				return nil, fmt.Errorf("region %q exit %q: %w", name, ed.Name, err)
			}
			region.Exits = append(region.Exits, &Exit{
				Name:      ed.Name,
				Connected: ed.ConnectedRegion,
				Rule:      rule,
			})
		}
		for _, ld := range rd.Locations {
			rule, err := rules.DecodeAny(ld.AccessRule)
			if err != nil {
				return nil, fmt.Errorf("region %q location %q: %w", name, ld.Name, err)
			}
			region.Locations = append(region.Locations, &Location{
				Name: ld.Name,
				Rule: rule,
				Item: ld.Item,
			})
		}
		w.Regions[name] = region
	}

	for player, table := range doc.Items {
		defs := make(map[string]ItemDef, len(table))
		for item, id := range table {
			defs[item] = ItemDef{Advancement: id.Advancement, Groups: id.Groups}
		}
		w.Items[player] = defs
	}

	if err := w.Finalize(); err != nil {
		return nil, err
	}
	return w, nil
}
