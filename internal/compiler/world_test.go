package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillback/spheretrace/internal/rules"
)

const validWorld = `
world: {
	game:  "cavern-quest"
	start: "Menu"

	settings: assume_bidirectional_exits: false

	regions: {
		"Menu": {
			exits: [{name: "Start Door", connected_region: "Overworld"}]
		}
		"Overworld": {
			exits: [{
				name:             "Cave Mouth"
				connected_region: "Cave"
				access_rule: {pred: "has", args: ["Lamp"]}
			}]
			locations: [{
				name: "Field Chest"
				item: "Lamp"
			}]
		}
		"Cave": {
			locations: [{
				name: "Cave Chest"
				item: "Bomb"
				access_rule: {and: [
					{pred: "has", args: ["Lamp"]},
					{pred: "count", args: ["Bomb", 0]},
				]}
			}]
		}
	}

	items: "1": {
		"Lamp": {advancement: true}
		"Ignition": {advancement: true, groups: ["events"]}
	}
}
`

func TestCompileWorldSource_Valid(t *testing.T) {
	w, err := CompileWorldSource(validWorld, "world.cue")
	require.NoError(t, err)

	assert.Equal(t, "cavern-quest", w.Game)
	assert.Equal(t, "Menu", w.Start)
	assert.False(t, w.Settings.AssumeBidirectionalExits)
	assert.Equal(t, []string{"Cave", "Menu", "Overworld"}, w.RegionNames())
	assert.Equal(t, []string{"Cave Chest", "Field Chest"}, w.LocationNames())

	door := w.Region("Menu").Exits[0]
	assert.Equal(t, "Start Door", door.Name)
	assert.Equal(t, "Overworld", door.Connected)
	assert.Nil(t, door.Rule, "exit without access_rule is always open")

	mouth := w.Region("Overworld").Exits[0]
	require.NotNil(t, mouth.Rule)
	assert.Equal(t, "has(Lamp)", rules.Format(mouth.Rule))

	chest := w.Location("Cave Chest")
	assert.Equal(t, "Bomb", chest.Item)
	require.NotNil(t, chest.Rule)

	assert.True(t, w.IsEventItem("1", "Ignition"))
	assert.False(t, w.IsEventItem("1", "Lamp"))
}

func TestCompileWorldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.cue")
	require.NoError(t, os.WriteFile(path, []byte(validWorld), 0o644))

	w, err := CompileWorldFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cavern-quest", w.Game)

	_, err = CompileWorldFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}

func TestCompileWorldSource_MissingWorldStruct(t *testing.T) {
	_, err := CompileWorldSource(`regions: {}`, "bare.cue")
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "world", cerr.Field)
	assert.Contains(t, err.Error(), "world struct is required")
}

func TestCompileWorldSource_MissingRegions(t *testing.T) {
	_, err := CompileWorldSource(`world: game: "g"`, "noregions.cue")
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "regions", cerr.Field)
}

func TestCompileWorldSource_ExitMissingTarget(t *testing.T) {
	src := `
world: regions: "Menu": exits: [{name: "Door"}]
`
	_, err := CompileWorldSource(src, "badexit.cue")
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "connected_region", cerr.Field)
}

func TestCompileWorldSource_BadRule(t *testing.T) {
	src := `
world: regions: "Menu": locations: [{
	name: "Chest"
	access_rule: {frob: "nope"}
}]
`
	_, err := CompileWorldSource(src, "badrule.cue")
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "access_rule", cerr.Field)
	assert.True(t, cerr.Pos.IsValid(), "rule errors carry the source position")
	assert.Contains(t, err.Error(), "badrule.cue")
}

func TestCompileWorldSource_DanglingExit(t *testing.T) {
	src := `
world: regions: "Menu": exits: [{name: "Door", connected_region: "Nowhere"}]
`
	_, err := CompileWorldSource(src, "dangling.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nowhere")
}

func TestCompileWorldSource_CUESyntaxError(t *testing.T) {
	_, err := CompileWorldSource(`world: { regions: `, "syntax.cue")
	require.Error(t, err)
}

func TestCompileWorldSource_DefaultStart(t *testing.T) {
	src := `
world: regions: "Menu": locations: [{name: "Chest"}]
`
	w, err := CompileWorldSource(src, "defaults.cue")
	require.NoError(t, err)
	assert.Equal(t, "Menu", w.Start)
}

func TestCompileWorldSource_AssumeBidirectional(t *testing.T) {
	src := `
world: {
	settings: assume_bidirectional_exits: true
	regions: {
		"Menu": exits: [{name: "Door", connected_region: "Vault"}]
		"Vault": {}
	}
}
`
	w, err := CompileWorldSource(src, "bidi.cue")
	require.NoError(t, err)
	assert.True(t, w.Region("Menu").Exits[0].Bidirectional)
}
