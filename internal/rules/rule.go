package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rule is a sealed interface over the rule expression node kinds.
// Only And, Or, Not, and Call implement it. A nil Rule is vacuously true.
type Rule interface {
	ruleNode()
}

// And is true when every child rule is true. An empty And is true.
type And []Rule

func (And) ruleNode() {}

// Or is true when at least one child rule is true. An empty Or is false.
type Or []Rule

func (Or) ruleNode() {}

// Not negates its inner rule.
type Not struct {
	Inner Rule
}

func (Not) ruleNode() {}

// Call is a leaf predicate invocation, resolved by name against a Registry.
type Call struct {
	Name string
	Args []Arg
}

func (Call) ruleNode() {}

// Arg is a sealed interface over predicate argument types.
// Only String and Int implement it - floats are rejected at decode time
// because item counts and names are the only argument kinds rules need.
type Arg interface {
	argNode()
}

// String is a string predicate argument (item or location name).
type String string

func (String) argNode() {}

// Int is an integer predicate argument (a count threshold).
type Int int64

func (Int) argNode() {}

// Decode parses a JSON rule document into a Rule tree.
//
// The wire format mirrors the world-description documents:
//
//	{"and": [<rule>, ...]}
//	{"or":  [<rule>, ...]}
//	{"not": <rule>}
//	{"pred": "has", "args": ["Hookshot", 2]}
//
// JSON null decodes to a nil Rule (vacuously true). Any other shape is a
// malformed rule node and returns an error.
func Decode(data []byte) (Rule, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var raw struct {
		And  []json.RawMessage `json:"and"`
		Or   []json.RawMessage `json:"or"`
		Not  json.RawMessage   `json:"not"`
		Pred string            `json:"pred"`
		Args []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed rule node: %w", err)
	}

	kinds := 0
	if raw.And != nil {
		kinds++
	}
	if raw.Or != nil {
		kinds++
	}
	if raw.Not != nil {
		kinds++
	}
	if raw.Pred != "" {
		kinds++
	}
	if kinds != 1 {
		return nil, fmt.Errorf("malformed rule node: expected exactly one of and/or/not/pred, got %s", trimmed)
	}

	switch {
	case raw.And != nil:
		children, err := decodeChildren(raw.And)
		if err != nil {
			return nil, err
		}
		return And(children), nil

	case raw.Or != nil:
		children, err := decodeChildren(raw.Or)
		if err != nil {
			return nil, err
		}
		return Or(children), nil

	case raw.Not != nil:
		inner, err := Decode(raw.Not)
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil

	default:
		args := make([]Arg, 0, len(raw.Args))
		for i, rawArg := range raw.Args {
			arg, err := decodeArg(rawArg)
			if err != nil {
				return nil, fmt.Errorf("predicate %q arg %d: %w", raw.Pred, i, err)
			}
			args = append(args, arg)
		}
		return Call{Name: raw.Pred, Args: args}, nil
	}
}

// DecodeAny converts an already-unmarshalled document value (from yaml.v3 or
// a generic JSON decode) into a Rule tree. nil is vacuously true.
func DecodeAny(v any) (Rule, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(normalizeKeys(v))
	if err != nil {
		return nil, fmt.Errorf("malformed rule node: %w", err)
	}
	return Decode(data)
}

// normalizeKeys converts yaml.v3's map[string]any trees as-is and rejects
// nothing; key normalization is only needed because yaml decodes numbers
// as int, which json.Marshal handles.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeKeys(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeKeys(elem)
		}
		return out
	default:
		return v
	}
}

func decodeChildren(raws []json.RawMessage) ([]Rule, error) {
	children := make([]Rule, 0, len(raws))
	for i, raw := range raws {
		child, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children = append(children, child)
	}
	return children, nil
}

// decodeArg decodes a single predicate argument. Strings and integers only;
// floats are rejected the same way malformed nodes are.
func decodeArg(data []byte) (Arg, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return String(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("argument must be a string or integer: %s", string(data))
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("non-integer numeric argument: %s", n)
	}
	return Int(i), nil
}

// Format renders a rule tree for diagnostics. Not a parseable syntax.
func Format(r Rule) string {
	switch node := r.(type) {
	case nil:
		return "true"
	case And:
		return formatList("and", node)
	case Or:
		return formatList("or", []Rule(node))
	case Not:
		return "not(" + Format(node.Inner) + ")"
	case Call:
		parts := make([]string, len(node.Args))
		for i, arg := range node.Args {
			switch a := arg.(type) {
			case String:
				parts[i] = string(a)
			case Int:
				parts[i] = fmt.Sprintf("%d", int64(a))
			}
		}
		return node.Name + "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("<unknown rule %T>", r)
	}
}

func formatList(op string, children []Rule) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = Format(c)
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// Encode renders a rule tree back into the wire format Decode accepts.
// A nil rule encodes as JSON null.
func Encode(r Rule) (json.RawMessage, error) {
	v, err := encodeValue(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func encodeValue(r Rule) (any, error) {
	switch node := r.(type) {
	case nil:
		return nil, nil
	case And:
		return encodeList("and", node)
	case Or:
		return encodeList("or", node)
	case Not:
		inner, err := encodeValue(node.Inner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"not": inner}, nil
	case Call:
		args := make([]any, len(node.Args))
		for i, arg := range node.Args {
			switch a := arg.(type) {
			case String:
				args[i] = string(a)
			case Int:
				args[i] = int64(a)
			default:
				return nil, fmt.Errorf("unknown argument type %T", arg)
			}
		}
		return map[string]any{"pred": node.Name, "args": args}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %T", r)
	}
}

func encodeList(op string, children []Rule) (any, error) {
	vals := make([]any, len(children))
	for i, c := range children {
		v, err := encodeValue(c)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return map[string]any{op: vals}, nil
}
