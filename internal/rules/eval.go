package rules

import (
	"fmt"
)

// Compiled is a rule whose predicates have been resolved against a Registry.
// Compilation front-loads name resolution so that an unknown predicate
// surfaces when rules are loaded, not in the middle of a sweep.
//
// Compiled rules are immutable and safe for concurrent evaluation.
type Compiled struct {
	source Rule
	eval   func(State) (bool, error)
}

// Evaluate runs the rule against a state. AND and OR short-circuit; a nil
// source rule is vacuously true. Predicate errors propagate unchanged.
func (c *Compiled) Evaluate(st State) (bool, error) {
	if c == nil || c.eval == nil {
		return true, nil
	}
	return c.eval(st)
}

// Source returns the rule tree this was compiled from, for diagnostics.
func (c *Compiled) Source() Rule {
	if c == nil {
		return nil
	}
	return c.source
}

// Compile resolves every predicate in the rule tree against the registry
// for the given game and returns an evaluable form.
//
// A nil rule compiles to the vacuously-true rule. Unknown predicates and
// unknown node kinds are compile errors.
func Compile(r Rule, reg *Registry, game string) (*Compiled, error) {
	if r == nil {
		return &Compiled{}, nil
	}
	fn, err := compileNode(r, reg, game)
	if err != nil {
		return nil, err
	}
	return &Compiled{source: r, eval: fn}, nil
}

func compileNode(r Rule, reg *Registry, game string) (func(State) (bool, error), error) {
	switch node := r.(type) {
	case And:
		children, err := compileChildren(node, reg, game)
		if err != nil {
			return nil, err
		}
		return func(st State) (bool, error) {
			for _, child := range children {
				ok, err := child(st)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		}, nil

	case Or:
		children, err := compileChildren(node, reg, game)
		if err != nil {
			return nil, err
		}
		return func(st State) (bool, error) {
			for _, child := range children {
				ok, err := child(st)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}, nil

	case Not:
		if node.Inner == nil {
			// not(true) - a constant-false rule is almost certainly a
			// world-definition mistake, but it is well-defined.
			return func(State) (bool, error) { return false, nil }, nil
		}
		inner, err := compileNode(node.Inner, reg, game)
		if err != nil {
			return nil, err
		}
		return func(st State) (bool, error) {
			ok, err := inner(st)
			if err != nil {
				return false, err
			}
			return !ok, nil
		}, nil

	case Call:
		fn, err := reg.Resolve(game, node.Name)
		if err != nil {
			return nil, err
		}
		args := node.Args
		name := node.Name
		return func(st State) (bool, error) {
			ok, err := fn(st, args)
			if err != nil {
				return false, fmt.Errorf("predicate %s: %w", name, err)
			}
			return ok, nil
		}, nil

	default:
		return nil, fmt.Errorf("malformed rule node: unknown kind %T", r)
	}
}

func compileChildren(children []Rule, reg *Registry, game string) ([]func(State) (bool, error), error) {
	fns := make([]func(State) (bool, error), 0, len(children))
	for i, child := range children {
		if child == nil {
			// A nil child inside a combinator is vacuously true.
			fns = append(fns, func(State) (bool, error) { return true, nil })
			continue
		}
		fn, err := compileNode(child, reg, game)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}
