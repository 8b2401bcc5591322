// Package rules implements the access-rule expression tree and its evaluator.
//
// A rule is an immutable boolean expression over the player's current state:
// AND/OR/NOT combinators with leaf predicate calls. Leaf predicates resolve
// against a Registry that holds the generic predicates (has, count, checked)
// plus any game-specific predicates registered for a game identifier.
//
// Resolution happens at compile time, not evaluation time: Compile walks the
// tree once, binds every Call to its predicate function, and returns a
// Compiled rule. An unknown predicate name is a compile error - it is never
// silently treated as "inaccessible", because that would mask logic bugs in
// world definitions.
//
// Game-specific predicates can be written in Go (Registry.RegisterGame) or
// loaded from a Lua script (LoadLuaPredicates).
package rules
