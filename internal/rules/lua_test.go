package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = `
predicates = {
    can_cross_gap = function()
        return has("Hookshot") or has("Bomb", 3)
    end,

    has_enough_rupees = function(n)
        return count("Rupee") >= n
    end,

    revisit = function(loc)
        return checked(loc)
    end,
}
`

// TestLoadLuaPredicateSource registers every function in the predicates table.
func TestLoadLuaPredicateSource(t *testing.T) {
	reg := NewRegistry()
	names, err := LoadLuaPredicateSource(reg, "test-game", testScript)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"can_cross_gap", "has_enough_rupees", "revisit"}, names)

	_, err = reg.Resolve("test-game", "can_cross_gap")
	require.NoError(t, err)

	// Not registered for other games.
	_, err = reg.Resolve("other-game", "can_cross_gap")
	require.Error(t, err)
}

// TestLuaPredicate_Evaluation runs Lua predicates against live state.
func TestLuaPredicate_Evaluation(t *testing.T) {
	reg := NewRegistry()
	_, err := LoadLuaPredicateSource(reg, "test-game", testScript)
	require.NoError(t, err)

	eval := func(name string, st State, args ...Arg) bool {
		t.Helper()
		compiled, err := Compile(Call{Name: name, Args: args}, reg, "test-game")
		require.NoError(t, err)
		ok, err := compiled.Evaluate(st)
		require.NoError(t, err)
		return ok
	}

	assert.False(t, eval("can_cross_gap", stateWith(map[string]int{})))
	assert.True(t, eval("can_cross_gap", stateWith(map[string]int{"Hookshot": 1})))
	assert.False(t, eval("can_cross_gap", stateWith(map[string]int{"Bomb": 2})))
	assert.True(t, eval("can_cross_gap", stateWith(map[string]int{"Bomb": 3})))

	rich := stateWith(map[string]int{"Rupee": 50})
	assert.True(t, eval("has_enough_rupees", rich, Int(50)))
	assert.False(t, eval("has_enough_rupees", rich, Int(51)))

	st := &fakeState{items: map[string]int{}, checked: map[string]bool{"Chest 1": true}}
	assert.True(t, eval("revisit", st, String("Chest 1")))
	assert.False(t, eval("revisit", st, String("Chest 2")))
}

// TestLoadLuaPredicateSource_Errors covers script and table shape failures.
func TestLoadLuaPredicateSource_Errors(t *testing.T) {
	reg := NewRegistry()

	_, err := LoadLuaPredicateSource(reg, "g", `this is not lua`)
	assert.Error(t, err)

	_, err = LoadLuaPredicateSource(reg, "g", `x = 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predicates")

	_, err = LoadLuaPredicateSource(reg, "g", `predicates = { broken = 42 }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")
}

// TestLuaPredicate_NonBooleanReturn is an evaluation-time error, not false.
func TestLuaPredicate_NonBooleanReturn(t *testing.T) {
	reg := NewRegistry()
	_, err := LoadLuaPredicateSource(reg, "g", `
predicates = {
    bad = function() return "yes" end,
}
`)
	require.NoError(t, err)

	compiled, err := Compile(Call{Name: "bad"}, reg, "g")
	require.NoError(t, err)

	_, err = compiled.Evaluate(stateWith(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want boolean")
}
