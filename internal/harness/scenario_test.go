package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jagtrack/internal/ir"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: minimal
description: "Discover one activity"
templates: |
  jag: "urn:triage-victim": estimates: {addressing_ms: 7500}
events:
  - category: DISCOVERED
    observer: obs-a
    elapsed_ms: 0
    discovery: {urn: "urn:triage-victim", inputs: {victim-id: v1}}
  - category: ADDRESSING
    observer: obs-a
    elapsed_ms: 100
    activity: {urn: "urn:triage-victim", subject: p1, confidence: 0.5}
    expect_error: ""
assertions:
  - type: trace_count
    category: DISCOVERED
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, t.TempDir(), minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Events, 2)
	assert.Equal(t, ir.CategoryDiscovered, scenario.Events[0].Category)
	assert.Equal(t, ir.Params{"victim-id": "v1"}, scenario.Events[0].Discovery.Inputs)
	assert.Equal(t, 0.5, scenario.Events[1].Activity.Confidence)
	assert.Equal(t, int64(100), scenario.Events[1].ElapsedMS)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, 1, *scenario.Assertions[0].Count)
}

func TestLoadScenario_ResolvesCatalogRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "catalog"), 0755))
	path := writeScenario(t, dir, `
name: relative
description: "Catalog next to the scenario"
catalog: catalog
events:
  - {category: SUMMARY, observer: obs-a, elapsed_ms: 0, summary: {}}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "catalog"), scenario.Catalog)

	other := t.TempDir()
	_, err = LoadScenarioWithBasePath(path, other)
	assert.ErrorContains(t, err, "catalog directory not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), minimalScenario+"assertion: []\n")
	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestValidateScenario(t *testing.T) {
	one := 1
	yes := true
	v := 1.0
	event := EventStep{Inbound: ir.Inbound{Category: ir.CategorySummary, Observer: "a", Summary: &ir.SummaryRequest{}}}
	valid := func() Scenario {
		return Scenario{Name: "n", Description: "d", Templates: "jag: x: {}", Events: []EventStep{event}}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no catalog", func(s *Scenario) { s.Templates = "" }, "one of catalog or templates"},
		{"both catalogs", func(s *Scenario) { s.Catalog = "." }, "mutually exclusive"},
		{"negative pending", func(s *Scenario) { s.MaxPending = -1 }, "max_pending"},
		{"no events", func(s *Scenario) { s.Events = nil }, "events list is required"},
		{"event without category", func(s *Scenario) { s.Events = []EventStep{{}} }, "events[0]: category is required"},
		{"unknown assertion", func(s *Scenario) { s.Assertions = []Assertion{{Type: "final_state"}} }, "unknown assertion type"},
		{"assertion without type", func(s *Scenario) { s.Assertions = []Assertion{{}} }, "type is required"},
		{"trace_count without count", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceCount}} }, "count is required"},
		{"trace_order without urns", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertTraceOrder}} }, "urns list"},
		{"completion without flag", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertCompletion, URN: "x"}} }, "complete are required"},
		{"unknown measure", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertDuration, URN: "x", Value: &v, Measure: "wall_clock"}}
		}, "unknown measure"},
		{"ledger of completion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertLedger, URN: "x", Category: ir.CategoryCompletion, Expect: map[string]int{}}}
		}, "ledger category"},
		{"pending without observer", func(s *Scenario) { s.Assertions = []Assertion{{Type: AssertPending, Count: &one}} }, "observer and count"},
		{"valid assertions", func(s *Scenario) {
			s.Assertions = []Assertion{
				{Type: AssertCompletion, URN: "x", Complete: &yes},
				{Type: AssertDuration, URN: "x", Value: &v, Measure: "addressing"},
				{Type: AssertSummary, URN: "x"},
			}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateScenario(&s)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
