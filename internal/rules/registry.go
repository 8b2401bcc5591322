package rules

import (
	"fmt"
)

// State is the read-only view a predicate evaluates against.
// Snapshots implement it; tests can supply lightweight fakes.
type State interface {
	// ItemCount returns the inventory count for an item, 0 when absent.
	ItemCount(item string) int

	// Checked reports whether a location has already been checked.
	Checked(location string) bool
}

// PredicateFunc evaluates a leaf predicate against the current state.
// Argument validation errors and state lookups that cannot be answered
// must be returned as errors, never folded into a false result.
type PredicateFunc func(st State, args []Arg) (bool, error)

// UnknownPredicateError is returned when a rule references a predicate that
// is neither generic nor registered for the game.
type UnknownPredicateError struct {
	Game string
	Name string
}

func (e *UnknownPredicateError) Error() string {
	if e.Game == "" {
		return fmt.Sprintf("unknown predicate %q", e.Name)
	}
	return fmt.Sprintf("unknown predicate %q for game %q", e.Name, e.Game)
}

// Registry resolves predicate names to functions.
//
// Generic predicates apply to every game. Game-specific predicates are
// keyed by (game, name) and shadow nothing: generic names win, so a game
// cannot accidentally redefine "has".
type Registry struct {
	generic map[string]PredicateFunc
	game    map[string]map[string]PredicateFunc
}

// NewRegistry creates a registry pre-populated with the generic predicates:
//
//	has(item)          - at least one of item
//	has(item, n)       - at least n of item
//	count(item, n)     - alias for has(item, n)
//	checked(location)  - location already checked
func NewRegistry() *Registry {
	r := &Registry{
		generic: make(map[string]PredicateFunc),
		game:    make(map[string]map[string]PredicateFunc),
	}
	r.generic["has"] = predHas
	r.generic["count"] = predCount
	r.generic["checked"] = predChecked
	return r
}

// RegisterGame adds a game-specific predicate. Registering the same
// (game, name) pair twice replaces the earlier function; world reloads
// depend on that.
func (r *Registry) RegisterGame(game, name string, fn PredicateFunc) {
	table, ok := r.game[game]
	if !ok {
		table = make(map[string]PredicateFunc)
		r.game[game] = table
	}
	table[name] = fn
}

// Resolve returns the predicate function for a name, preferring the generic
// table over the game table. Returns *UnknownPredicateError when neither
// table has the name.
func (r *Registry) Resolve(game, name string) (PredicateFunc, error) {
	if fn, ok := r.generic[name]; ok {
		return fn, nil
	}
	if table, ok := r.game[game]; ok {
		if fn, ok := table[name]; ok {
			return fn, nil
		}
	}
	return nil, &UnknownPredicateError{Game: game, Name: name}
}

// GamePredicates returns the predicate names registered for a game,
// for diagnostics.
func (r *Registry) GamePredicates(game string) []string {
	table := r.game[game]
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	return names
}

func predHas(st State, args []Arg) (bool, error) {
	item, threshold, err := itemAndThreshold("has", args, true)
	if err != nil {
		return false, err
	}
	return st.ItemCount(item) >= threshold, nil
}

func predCount(st State, args []Arg) (bool, error) {
	item, threshold, err := itemAndThreshold("count", args, false)
	if err != nil {
		return false, err
	}
	return st.ItemCount(item) >= threshold, nil
}

func predChecked(st State, args []Arg) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("checked: want 1 argument, got %d", len(args))
	}
	loc, ok := args[0].(String)
	if !ok {
		return false, fmt.Errorf("checked: location must be a string")
	}
	return st.Checked(string(loc)), nil
}

// itemAndThreshold validates the (item [, n]) argument shape shared by
// has and count. When optionalCount is false the count is required.
func itemAndThreshold(pred string, args []Arg, optionalCount bool) (string, int, error) {
	if len(args) == 0 || (!optionalCount && len(args) != 2) || len(args) > 2 {
		return "", 0, fmt.Errorf("%s: wrong argument count %d", pred, len(args))
	}
	item, ok := args[0].(String)
	if !ok {
		return "", 0, fmt.Errorf("%s: item must be a string", pred)
	}
	threshold := 1
	if len(args) == 2 {
		n, ok := args[1].(Int)
		if !ok {
			return "", 0, fmt.Errorf("%s: count must be an integer", pred)
		}
		if n < 1 {
			return "", 0, fmt.Errorf("%s: count must be positive, got %d", pred, int64(n))
		}
		threshold = int(n)
	}
	return string(item), threshold, nil
}
