package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWorldJSON = `{
  "game": "test-game",
  "start_region": "Menu",
  "settings": {"assume_bidirectional_exits": false},
  "regions": {
    "Menu": {
      "exits": [
        {"name": "Menu -> Overworld", "connected_region": "Overworld"}
      ]
    },
    "Overworld": {
      "exits": [
        {"name": "Overworld -> Menu", "connected_region": "Menu"},
        {"name": "Overworld -> Cave", "connected_region": "Cave",
         "access_rule": {"pred": "has", "args": ["Lamp"]}}
      ],
      "locations": [
        {"name": "Field Chest", "item": "Lamp"}
      ]
    },
    "Cave": {
      "locations": [
        {"name": "Cave Chest", "item": "Sword",
         "access_rule": {"pred": "has", "args": ["Bomb"]}}
      ]
    }
  },
  "items": {
    "1": {
      "Lamp": {"advancement": true},
      "Sword": {"advancement": true},
      "Ignition": {"advancement": true, "groups": ["Events"]}
    }
  }
}`

// TestParseJSON loads a complete document and resolves the graph.
func TestParseJSON(t *testing.T) {
	w, err := ParseJSON([]byte(testWorldJSON))
	require.NoError(t, err)

	assert.Equal(t, "test-game", w.Game)
	assert.Equal(t, "Menu", w.Start)
	require.NotNil(t, w.Region("Overworld"))

	loc := w.Location("Cave Chest")
	require.NotNil(t, loc)
	assert.Equal(t, "Cave", loc.Parent)
	assert.Equal(t, "Sword", loc.Item)
	assert.NotNil(t, loc.Rule)

	assert.Equal(t, []string{"Cave Chest", "Field Chest"}, w.LocationNames())
	assert.Equal(t, []string{"Cave", "Menu", "Overworld"}, w.RegionNames())
}

// TestFinalize_ReverseExits verifies exits pair with their declared reverse.
func TestFinalize_ReverseExits(t *testing.T) {
	w, err := ParseJSON([]byte(testWorldJSON))
	require.NoError(t, err)

	menu := w.Region("Menu")
	forward := menu.Exits[0]
	require.NotNil(t, forward.Reverse, "Menu -> Overworld has a declared reverse")
	assert.Equal(t, "Overworld -> Menu", forward.Reverse.Name)
	assert.True(t, forward.Bidirectional)

	// Overworld -> Cave has no reverse and the global flag is off.
	overworld := w.Region("Overworld")
	toCave := overworld.Exits[1]
	assert.Nil(t, toCave.Reverse)
	assert.False(t, toCave.Bidirectional)
}

// TestFinalize_AssumeBidirectional flips one-way exits when the flag is set.
func TestFinalize_AssumeBidirectional(t *testing.T) {
	w := &World{
		Settings: Settings{AssumeBidirectionalExits: true},
		Regions: map[string]*Region{
			"Menu": {Exits: []*Exit{{Name: "down", Connected: "Pit"}}},
			"Pit":  {},
		},
		Start: "Menu",
	}
	require.NoError(t, w.Finalize())

	exit := w.Region("Menu").Exits[0]
	assert.Nil(t, exit.Reverse)
	assert.True(t, exit.Bidirectional)
}

// TestFinalize_Errors rejects dangling references and duplicate locations.
func TestFinalize_Errors(t *testing.T) {
	w := &World{
		Regions: map[string]*Region{
			"Menu": {Exits: []*Exit{{Name: "out", Connected: "Nowhere"}}},
		},
		Start: "Menu",
	}
	err := w.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nowhere")

	w = &World{
		Regions: map[string]*Region{
			"A": {Locations: []*Location{{Name: "Chest"}}},
			"B": {Locations: []*Location{{Name: "Chest"}}},
		},
		Start: "A",
	}
	err = w.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Chest")

	w = &World{Regions: map[string]*Region{"A": {}}, Start: "Missing"}
	assert.Error(t, w.Finalize())
}

// TestParseJSON_SchemaRejectsBadShape verifies schema validation fires
// before decoding.
func TestParseJSON_SchemaRejectsBadShape(t *testing.T) {
	// exits entries require connected_region
	bad := `{"regions": {"Menu": {"exits": [{"name": "out"}]}}}`
	_, err := ParseJSON([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")

	_, err = ParseJSON([]byte(`{}`))
	assert.Error(t, err)
}

// TestParseYAML loads the YAML flavor of the document.
func TestParseYAML(t *testing.T) {
	src := `
game: test-game
start_region: Menu
regions:
  Menu:
    exits:
      - name: Menu -> Overworld
        connected_region: Overworld
  Overworld:
    locations:
      - name: Field Chest
        item: Lamp
        access_rule:
          pred: has
          args: [Lamp]
items:
  "1":
    Lamp:
      advancement: true
`
	w, err := ParseYAML([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "test-game", w.Game)
	require.NotNil(t, w.Location("Field Chest"))
	assert.NotNil(t, w.Location("Field Chest").Rule)
	assert.True(t, w.Items["1"]["Lamp"].Advancement)
}

// TestLoad dispatches on file extension.
func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "world.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(testWorldJSON), 0o644))
	w, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "test-game", w.Game)

	_, err = Load(filepath.Join(dir, "world.toml"))
	assert.Error(t, err)
}

// TestIsEventItem matches the events group case-insensitively.
func TestIsEventItem(t *testing.T) {
	w, err := ParseJSON([]byte(testWorldJSON))
	require.NoError(t, err)

	assert.True(t, w.IsEventItem("1", "Ignition"))
	assert.False(t, w.IsEventItem("1", "Lamp"))
	assert.False(t, w.IsEventItem("1", "Unknown"))
	assert.False(t, w.IsEventItem("2", "Ignition"))
}
