package textfsm

import (
	"bufio"
	"regexp"
	"strings"
)

// Record is one output row. Scalar values are string, List values []string.
type Record map[string]any

// Get returns the captured value for name as a string. List values yield
// their first element. The boolean is false when the value was never set.
func (r Record) Get(name string) (string, bool) {
	switch v := r[name].(type) {
	case string:
		return v, true
	case []string:
		if len(v) > 0 {
			return v[0], true
		}
		return "", true
	default:
		return "", false
	}
}

// All returns every captured element for name. Scalar values yield a single
// element, unset values nil.
func (r Record) All(name string) []string {
	switch v := r[name].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

// machine holds the mutable run state for one ParseText call. Templates are
// immutable once parsed, so a single Template may be shared across machines.
type machine struct {
	tmpl    *Template
	state   string
	row     map[string]any
	records []Record
}

// ParseText runs the state machine over text and returns the flushed records
// in emission order. Input it cannot match is skipped, never an error, so the
// result for unrecognized output is simply an empty slice.
func (t *Template) ParseText(text string) []Record {
	m := &machine{
		tmpl:  t,
		state: "Start",
		row:   make(map[string]any, len(t.Values)),
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m.processLine(strings.TrimRight(scanner.Text(), "\r"))
	}

	// End of input flushes whatever was captured since the last record.
	m.flush()

	return m.records
}

// processLine applies the current state's rules to one input line. The first
// matching rule fires; a Continue rule keeps scanning the remaining rules
// against the same line.
func (m *machine) processLine(line string) {
	rules := m.tmpl.States[m.state]
	for i := range rules {
		r := &rules[i]
		idx := r.Regexp.FindStringSubmatchIndex(line)
		if idx == nil {
			continue
		}

		m.assign(r.Regexp, line, idx)

		if r.Record == OpRecord {
			m.flush()
		}
		if r.Line == OpContinue {
			continue
		}
		if r.NewState != "" {
			m.state = r.NewState
		}
		return
	}
}

// assign copies the named groups that participated in the match into the
// current row. List values append, everything else overwrites.
func (m *machine) assign(re *regexp.Regexp, line string, idx []int) {
	for gi, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		start, end := idx[2*gi], idx[2*gi+1]
		if start < 0 {
			continue
		}
		text := line[start:end]

		vi := m.tmpl.valueIndex[name]
		if m.tmpl.Values[vi].List() {
			prev, _ := m.row[name].([]string)
			m.row[name] = append(prev, text)
		} else {
			m.row[name] = text
		}
	}
}

// flush emits the current row as a record. A row with any Required value
// unset is dropped. Filldown values survive the post-flush clear.
func (m *machine) flush() {
	if len(m.row) == 0 {
		return
	}

	for _, v := range m.tmpl.Values {
		if v.Required() {
			if _, set := m.row[v.Name]; !set {
				m.clear()
				return
			}
		}
	}

	rec := make(Record, len(m.row))
	for name, val := range m.row {
		if list, ok := val.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			rec[name] = cp
		} else {
			rec[name] = val
		}
	}
	m.records = append(m.records, rec)
	m.clear()
}

func (m *machine) clear() {
	for name := range m.row {
		if m.tmpl.Values[m.tmpl.valueIndex[name]].Filldown() {
			continue
		}
		delete(m.row, name)
	}
}
