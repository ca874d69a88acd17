// Package textfsm implements a template-driven state-machine parser for
// semi-structured CLI output.
//
// A template declares named values with capture options (Required, Filldown,
// List) and one or more states. Each state holds an ordered list of rules; a
// rule is a line-anchored regex with value substitutions and an optional
// transition. The machine walks input line by line, applying the current
// state's rules top to bottom, and emits one record per Record transition
// (plus an implicit flush at end of input).
//
// The template syntax follows the de-facto TextFSM format so existing
// neighbor-discovery templates can be loaded unmodified.
package textfsm

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// Value capture options.
const (
	// OptRequired drops a record at flush time when the value is unset.
	OptRequired = 1 << iota
	// OptFilldown keeps the last seen value across records until overwritten.
	OptFilldown
	// OptList accumulates every match instead of overwriting.
	OptList
)

// Value is one named capture declared in a template header.
type Value struct {
	Name    string
	Pattern string // inner regex, without the declaration parentheses
	Options uint8
}

// Required reports whether the value must be set for a record to flush.
func (v Value) Required() bool { return v.Options&OptRequired != 0 }

// Filldown reports whether the value persists across records.
func (v Value) Filldown() bool { return v.Options&OptFilldown != 0 }

// List reports whether the value accumulates matches.
func (v Value) List() bool { return v.Options&OptList != 0 }

// Line operations.
type LineOp uint8

const (
	OpNext     LineOp = iota // advance to the next input line (default)
	OpContinue               // re-apply remaining rules to the same line
)

// Record operations.
type RecordOp uint8

const (
	OpNoRecord RecordOp = iota // default
	OpRecord                   // flush captured values as one output record
)

// Rule is one pattern line inside a state.
type Rule struct {
	Pattern  string // original pattern text, for diagnostics
	Regexp   *regexp.Regexp
	Line     LineOp
	Record   RecordOp
	NewState string // empty means stay in the current state
}

// Template is a parsed, immutable state-machine definition.
type Template struct {
	Name   string
	Values []Value
	States map[string][]Rule

	valueIndex map[string]int
}

// TemplateError reports a malformed template definition.
type TemplateError struct {
	Name string
	Line int
	Msg  string
}

func (e *TemplateError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template %s: line %d: %s", e.Name, e.Line, e.Msg)
	}
	return fmt.Sprintf("template %s: %s", e.Name, e.Msg)
}

var (
	valueLineRe = regexp.MustCompile(`^Value\s+(?:([A-Za-z,]+)\s+)?(\w+)\s+(\(.*\))\s*$`)
	stateLineRe = regexp.MustCompile(`^(\w+)\s*$`)
	actionRe    = regexp.MustCompile(`^(?:(Next|Continue)(?:\.(NoRecord|Record))?|(NoRecord|Record))?\s*(\w*)$`)
)

// ParseTemplate reads a template definition. The name is used in diagnostics
// and carried on the returned Template.
func ParseTemplate(name, definition string) (*Template, error) {
	t := &Template{
		Name:       name,
		States:     make(map[string][]Rule),
		valueIndex: make(map[string]int),
	}

	fail := func(line int, format string, args ...any) error {
		return &TemplateError{Name: name, Line: line, Msg: fmt.Sprintf(format, args...)}
	}

	var curState string
	lineNo := 0

	scanner := bufio.NewScanner(strings.NewReader(definition))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Value declarations appear before the first state.
		if curState == "" && strings.HasPrefix(line, "Value ") {
			v, err := parseValueLine(line)
			if err != nil {
				return nil, fail(lineNo, "%v", err)
			}
			if _, dup := t.valueIndex[v.Name]; dup {
				return nil, fail(lineNo, "duplicate value %q", v.Name)
			}
			t.valueIndex[v.Name] = len(t.Values)
			t.Values = append(t.Values, v)
			continue
		}

		// Indented ^... lines are rules of the current state.
		if line[0] == ' ' || line[0] == '\t' {
			if curState == "" {
				return nil, fail(lineNo, "rule outside of a state: %q", trimmed)
			}
			if !strings.HasPrefix(trimmed, "^") {
				return nil, fail(lineNo, "rule must start with '^': %q", trimmed)
			}
			rule, err := t.parseRuleLine(trimmed)
			if err != nil {
				return nil, fail(lineNo, "%v", err)
			}
			t.States[curState] = append(t.States[curState], rule)
			continue
		}

		// Anything else at column zero opens a new state.
		m := stateLineRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fail(lineNo, "invalid state definition: %q", line)
		}
		curState = m[1]
		if _, dup := t.States[curState]; dup {
			return nil, fail(lineNo, "duplicate state %q", curState)
		}
		t.States[curState] = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fail(0, "read template: %v", err)
	}

	if len(t.States) == 0 {
		return nil, fail(0, "no states defined")
	}
	if _, ok := t.States["Start"]; !ok {
		return nil, fail(0, "missing required state %q", "Start")
	}

	// Every transition target must name a defined state.
	for state, rules := range t.States {
		for _, r := range rules {
			if r.NewState == "" {
				continue
			}
			if _, ok := t.States[r.NewState]; !ok {
				return nil, fail(0, "state %s: transition to undefined state %q", state, r.NewState)
			}
		}
	}

	return t, nil
}

// parseValueLine handles `Value [Option[,Option]] NAME (regex)`.
func parseValueLine(line string) (Value, error) {
	m := valueLineRe.FindStringSubmatch(line)
	if m == nil {
		return Value{}, fmt.Errorf("invalid value declaration: %q", line)
	}

	var opts uint8
	if m[1] != "" {
		for _, opt := range strings.Split(m[1], ",") {
			switch opt {
			case "Required":
				opts |= OptRequired
			case "Filldown":
				opts |= OptFilldown
			case "List":
				opts |= OptList
			default:
				return Value{}, fmt.Errorf("unknown value option %q", opt)
			}
		}
	}

	pattern := m[3]
	inner := pattern[1 : len(pattern)-1]
	if _, err := regexp.Compile(inner); err != nil {
		return Value{}, fmt.Errorf("value %s: bad pattern: %v", m[2], err)
	}

	return Value{Name: m[2], Pattern: inner, Options: opts}, nil
}

// parseRuleLine handles `^pattern[ -> action]` after leading whitespace has
// been stripped.
func (t *Template) parseRuleLine(line string) (Rule, error) {
	pattern := line
	action := ""
	if idx := strings.LastIndex(line, " -> "); idx >= 0 {
		pattern = line[:idx]
		action = strings.TrimSpace(line[idx+len(" -> "):])
	}

	rule := Rule{Pattern: pattern}

	if action != "" {
		m := actionRe.FindStringSubmatch(action)
		if m == nil {
			return Rule{}, fmt.Errorf("invalid action %q", action)
		}
		switch m[1] {
		case "Continue":
			rule.Line = OpContinue
		case "Next", "":
			rule.Line = OpNext
		}
		switch {
		case m[2] == "Record" || m[3] == "Record":
			rule.Record = OpRecord
		default:
			rule.Record = OpNoRecord
		}
		rule.NewState = m[4]

		if rule.Line == OpContinue && rule.NewState != "" {
			return Rule{}, fmt.Errorf("action %q: Continue cannot change state", action)
		}
	}

	expanded, err := t.expandPattern(pattern)
	if err != nil {
		return Rule{}, err
	}
	re, err := regexp.Compile(expanded)
	if err != nil {
		return Rule{}, fmt.Errorf("pattern %q: %v", pattern, err)
	}
	rule.Regexp = re

	return rule, nil
}

// expandPattern substitutes $NAME / ${NAME} references with named capture
// groups and $$ with a literal dollar (regex end anchor).
func (t *Template) expandPattern(pattern string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '$' {
			out.WriteByte('$')
			i += 2
			continue
		}

		// ${NAME} or $NAME
		j := i + 1
		braced := j < len(pattern) && pattern[j] == '{'
		if braced {
			j++
		}
		start := j
		for j < len(pattern) && isWordByte(pattern[j]) {
			j++
		}
		name := pattern[start:j]
		if braced {
			if j >= len(pattern) || pattern[j] != '}' {
				return "", fmt.Errorf("pattern %q: unterminated ${...} reference", pattern)
			}
			j++
		}
		if name == "" {
			return "", fmt.Errorf("pattern %q: dangling '$'", pattern)
		}

		idx, ok := t.valueIndex[name]
		if !ok {
			return "", fmt.Errorf("pattern %q: reference to undeclared value %q", pattern, name)
		}
		fmt.Fprintf(&out, "(?P<%s>%s)", name, t.Values[idx].Pattern)
		i = j
	}
	return out.String(), nil
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
