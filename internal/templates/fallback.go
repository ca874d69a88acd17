package templates

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/topocrawl/topocrawl/internal/textfsm"
)

// RegexTemplate is the line-oriented fallback parser used when a state
// machine template produces no records, typically because the device output
// drifted from the format the template was written against.
//
// Unlike the state machine, every field pattern is tried against every line.
// A block_start match flushes the record in progress and opens a new one.
type RegexTemplate struct {
	Command string

	blockStart *regexp.Regexp
	fields     []regexField
}

type regexField struct {
	name     string
	re       *regexp.Regexp
	required bool
	list     bool
}

type regexTemplateSpec struct {
	Command    string `yaml:"command"`
	BlockStart string `yaml:"block_start"`
	Fields     []struct {
		Name     string `yaml:"name"`
		Pattern  string `yaml:"pattern"`
		Required bool   `yaml:"required"`
		List     bool   `yaml:"list"`
	} `yaml:"fields"`
}

// ParseRegexTemplate reads a fallback template definition from YAML. The name
// is used in diagnostics only.
func ParseRegexTemplate(name string, data []byte) (*RegexTemplate, error) {
	var spec regexTemplateSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("fallback template %s: parse yaml: %w", name, err)
	}

	if spec.BlockStart == "" {
		return nil, fmt.Errorf("fallback template %s: block_start is required", name)
	}
	if len(spec.Fields) == 0 {
		return nil, fmt.Errorf("fallback template %s: at least one field is required", name)
	}

	blockStart, err := regexp.Compile(spec.BlockStart)
	if err != nil {
		return nil, fmt.Errorf("fallback template %s: block_start: %w", name, err)
	}

	t := &RegexTemplate{
		Command:    spec.Command,
		blockStart: blockStart,
	}

	seen := make(map[string]bool, len(spec.Fields))
	for _, f := range spec.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("fallback template %s: field with empty name", name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("fallback template %s: duplicate field %q", name, f.Name)
		}
		seen[f.Name] = true

		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return nil, fmt.Errorf("fallback template %s: field %s: %w", name, f.Name, err)
		}
		t.fields = append(t.fields, regexField{
			name:     f.Name,
			re:       re,
			required: f.Required,
			list:     f.List,
		})
	}

	return t, nil
}

// Parse scans text line by line and returns one record per block. Input that
// matches nothing yields an empty slice, never an error.
func (t *RegexTemplate) Parse(text string) []textfsm.Record {
	var records []textfsm.Record
	row := make(map[string]any)

	flush := func() {
		if len(row) == 0 {
			return
		}
		defer func() {
			row = make(map[string]any)
		}()
		for _, f := range t.fields {
			if f.required {
				if _, set := row[f.name]; !set {
					return
				}
			}
		}
		rec := make(textfsm.Record, len(row))
		for k, v := range row {
			rec[k] = v
		}
		records = append(records, rec)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if t.blockStart.MatchString(line) {
			flush()
		}

		for _, f := range t.fields {
			m := f.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			captured := m[0]
			if len(m) > 1 {
				captured = m[1]
			}

			if f.list {
				prev, _ := row[f.name].([]string)
				row[f.name] = append(prev, captured)
				continue
			}
			// Scalar fields keep their first match within a block.
			if _, set := row[f.name]; !set {
				row[f.name] = captured
			}
		}
	}
	flush()

	return records
}
