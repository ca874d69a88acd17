package textfsm

import (
	"reflect"
	"testing"
)

const neighborTemplate = `# Test template resembling a neighbor table.
Value Required NEIGHBOR (\S+)
Value Filldown LOCAL_HOST (\S+)
Value List ADDRESS (\d+\.\d+\.\d+\.\d+)
Value PLATFORM (.+?)

Start
  ^Host: ${LOCAL_HOST}$$
  ^-+$$ -> Entry

Entry
  ^Device ID: ${NEIGHBOR}$$
  ^  IP address: ${ADDRESS}$$
  ^Platform: ${PLATFORM},
  ^-+$$ -> Record Entry
`

const neighborOutput = `Host: core-sw-01
-------------------------
Device ID: edge-rtr-01
  IP address: 10.0.0.1
  IP address: 10.0.1.1
Platform: cisco WS-C3850, Capabilities: Router Switch
-------------------------
Device ID: edge-rtr-02
  IP address: 10.0.0.2
Platform: cisco ISR4431, Capabilities: Router
-------------------------
Device ID: access-sw-09
  IP address: 10.0.0.9
Platform: cisco WS-C2960, Capabilities: Switch
`

func TestParseTemplateValues(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	if len(tmpl.Values) != 4 {
		t.Fatalf("got %d values, want 4", len(tmpl.Values))
	}

	checks := []struct {
		name     string
		required bool
		filldown bool
		list     bool
	}{
		{"NEIGHBOR", true, false, false},
		{"LOCAL_HOST", false, true, false},
		{"ADDRESS", false, false, true},
		{"PLATFORM", false, false, false},
	}
	for i, c := range checks {
		v := tmpl.Values[i]
		if v.Name != c.name {
			t.Errorf("value[%d].Name = %q, want %q", i, v.Name, c.name)
		}
		if v.Required() != c.required || v.Filldown() != c.filldown || v.List() != c.list {
			t.Errorf("value %s options = required:%v filldown:%v list:%v, want required:%v filldown:%v list:%v",
				v.Name, v.Required(), v.Filldown(), v.List(), c.required, c.filldown, c.list)
		}
	}

	if len(tmpl.States["Start"]) != 2 {
		t.Errorf("Start has %d rules, want 2", len(tmpl.States["Start"]))
	}
	if len(tmpl.States["Entry"]) != 4 {
		t.Errorf("Entry has %d rules, want 4", len(tmpl.States["Entry"]))
	}
}

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name       string
		definition string
	}{
		{
			name:       "no states",
			definition: "Value X (\\S+)\n",
		},
		{
			name:       "missing start state",
			definition: "Value X (\\S+)\n\nMain\n  ^${X} -> Record\n",
		},
		{
			name:       "transition to undefined state",
			definition: "Value X (\\S+)\n\nStart\n  ^${X} -> Nowhere\n",
		},
		{
			name:       "unknown value option",
			definition: "Value Sticky X (\\S+)\n\nStart\n  ^${X}\n",
		},
		{
			name:       "duplicate value",
			definition: "Value X (\\S+)\nValue X (\\d+)\n\nStart\n  ^${X}\n",
		},
		{
			name:       "reference to undeclared value",
			definition: "Value X (\\S+)\n\nStart\n  ^${Y}\n",
		},
		{
			name:       "continue with state change",
			definition: "Value X (\\S+)\n\nStart\n  ^${X} -> Continue Start\n",
		},
		{
			name:       "bad value regex",
			definition: "Value X ([)\n\nStart\n  ^${X}\n",
		},
		{
			name:       "rule before any state",
			definition: "Value X (\\S+)\n  ^${X}\n",
		},
		{
			name:       "rule missing caret",
			definition: "Value X (\\S+)\n\nStart\n  ${X}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTemplate("bad", tt.definition); err == nil {
				t.Errorf("ParseTemplate() error = nil, want template error")
			}
		})
	}
}

func TestParseTextRecords(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	records := tmpl.ParseText(neighborOutput)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	want := []Record{
		{
			"NEIGHBOR":   "edge-rtr-01",
			"LOCAL_HOST": "core-sw-01",
			"ADDRESS":    []string{"10.0.0.1", "10.0.1.1"},
			"PLATFORM":   "cisco WS-C3850",
		},
		{
			"NEIGHBOR":   "edge-rtr-02",
			"LOCAL_HOST": "core-sw-01",
			"ADDRESS":    []string{"10.0.0.2"},
			"PLATFORM":   "cisco ISR4431",
		},
		{
			"NEIGHBOR":   "access-sw-09",
			"LOCAL_HOST": "core-sw-01",
			"ADDRESS":    []string{"10.0.0.9"},
			"PLATFORM":   "cisco WS-C2960",
		},
	}
	for i := range want {
		if !reflect.DeepEqual(records[i], want[i]) {
			t.Errorf("record[%d] = %v, want %v", i, records[i], want[i])
		}
	}
}

// Parsing the same text twice must yield identical results. The machine keeps
// no state between runs.
func TestParseTextDeterministic(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	first := tmpl.ParseText(neighborOutput)
	second := tmpl.ParseText(neighborOutput)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated parse differs:\nfirst  = %v\nsecond = %v", first, second)
	}
}

func TestParseTextRequiredDropsRecord(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	// Second entry never states a Device ID, so NEIGHBOR stays unset and the
	// record must be dropped at flush.
	output := `Host: core-sw-01
----
Device ID: edge-rtr-01
  IP address: 10.0.0.1
----
  IP address: 10.0.0.2
Platform: cisco unknown,
----
`
	records := tmpl.ParseText(output)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if name, _ := records[0].Get("NEIGHBOR"); name != "edge-rtr-01" {
		t.Errorf("NEIGHBOR = %q, want %q", name, "edge-rtr-01")
	}
}

func TestParseTextImplicitFlushAtEOF(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	// No separator follows the entry, so the record only exists because end
	// of input flushes it.
	output := `Host: core-sw-01
----
Device ID: edge-rtr-01
  IP address: 10.0.0.1`

	records := tmpl.ParseText(output)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if name, _ := records[0].Get("NEIGHBOR"); name != "edge-rtr-01" {
		t.Errorf("NEIGHBOR = %q, want %q", name, "edge-rtr-01")
	}
}

func TestParseTextUnmatchedLinesSkipped(t *testing.T) {
	tmpl, err := ParseTemplate("neighbors", neighborTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	output := `%% garbage the template has no rule for
Host: core-sw-01
!! more noise
----
Device ID: edge-rtr-01
totally unrelated line
----
`
	records := tmpl.ParseText(output)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestParseTextFirstMatchWins(t *testing.T) {
	def := `Value KIND (\w+)

Start
  ^dev \S+
  ^dev ${KIND} -> Record
`
	tmpl, err := ParseTemplate("order", def)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	// Both rules match the line. Only the first may fire, and it captures
	// nothing, so no record can come out.
	records := tmpl.ParseText("dev router\n")
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestParseTextContinueAppliesLaterRules(t *testing.T) {
	def := `Value HOST (\S+)
Value PORT (\d+)

Start
  ^host=${HOST} -> Continue
  ^host=\S+ port=${PORT} -> Record
`
	tmpl, err := ParseTemplate("continue", def)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	records := tmpl.ParseText("host=sw1 port=22\n")
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	host, _ := records[0].Get("HOST")
	port, _ := records[0].Get("PORT")
	if host != "sw1" || port != "22" {
		t.Errorf("got host=%q port=%q, want host=%q port=%q", host, port, "sw1", "22")
	}
}

func TestParseTextStateTransition(t *testing.T) {
	def := `Value NAME (\S+)

Start
  ^BEGIN -> Body

Body
  ^name ${NAME} -> Record
`
	tmpl, err := ParseTemplate("states", def)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	// "name early" appears before BEGIN and must be ignored because Start has
	// no rule for it.
	records := tmpl.ParseText("name early\nBEGIN\nname late\n")
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if name, _ := records[0].Get("NAME"); name != "late" {
		t.Errorf("NAME = %q, want %q", name, "late")
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := Record{
		"SCALAR": "one",
		"LIST":   []string{"a", "b"},
	}

	if v, ok := rec.Get("SCALAR"); !ok || v != "one" {
		t.Errorf("Get(SCALAR) = %q, %v", v, ok)
	}
	if v, ok := rec.Get("LIST"); !ok || v != "a" {
		t.Errorf("Get(LIST) = %q, %v", v, ok)
	}
	if _, ok := rec.Get("MISSING"); ok {
		t.Errorf("Get(MISSING) reported set")
	}
	if got := rec.All("LIST"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("All(LIST) = %v", got)
	}
	if got := rec.All("SCALAR"); !reflect.DeepEqual(got, []string{"one"}) {
		t.Errorf("All(SCALAR) = %v", got)
	}
	if got := rec.All("MISSING"); got != nil {
		t.Errorf("All(MISSING) = %v, want nil", got)
	}
}
