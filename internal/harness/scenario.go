package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/jagtrack/internal/ir"
)

// Scenario defines a tracking scenario: a catalog, a timeline of inbound
// events and assertions on what the engine made of them.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is a directory of CUE template files.
	// Relative paths are resolved against the scenario file location.
	Catalog string `yaml:"catalog,omitempty"`

	// Templates is inline CUE catalog source, used instead of Catalog.
	Templates string `yaml:"templates,omitempty"`

	// MaxPending bounds each observer's orphan buffer. Zero means the
	// engine default.
	MaxPending int `yaml:"max_pending,omitempty"`

	// IDPrefix prefixes generated instance ids. Defaults to "jag", so the
	// first instance is "jag-1".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Events are processed in order, one at a time.
	Events []EventStep `yaml:"events"`

	// Assertions validate the trace and the final engine state.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one inbound event plus an optional expected rejection.
type EventStep struct {
	ir.Inbound `yaml:",inline"`

	// ExpectError is a runtime error code (e.g. "NEGATIVE_ELAPSED") or a
	// message fragment the event must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a publication matching category/observer/urn/snapshot exists
	// - "trace_order": first publications about urns appear in the given order
	// - "trace_count": exactly Count publications match
	// - "completion": the activity's completion flag equals Complete
	// - "duration": the activity's Measure equals Value (seconds)
	// - "ledger": the activity's Category ledger snapshot equals Expect
	// - "summary": the merged activity's team metrics
	// - "pending": the observer's orphan buffer holds Count events
	Type string `yaml:"type"`

	// Observer selects one observer's model. Empty selects the
	// cross-observer consensus for state assertions and any observer for
	// trace assertions.
	Observer string `yaml:"observer,omitempty"`

	// Category filters publications (trace assertions) or picks the
	// ledger (ledger).
	Category ir.Category `yaml:"category,omitempty"`

	// URN and Inputs select the activity. Inputs is a subset match.
	URN    string    `yaml:"urn,omitempty"`
	Inputs ir.Params `yaml:"inputs,omitempty"`

	// URNs is the expected order (trace_order).
	URNs []string `yaml:"urns,omitempty"`

	// Count is the expected number of publications or pending events.
	Count *int `yaml:"count,omitempty"`

	// Expect is the expected ledger snapshot (ledger, trace_contains).
	Expect map[string]int `yaml:"expect,omitempty"`

	// Complete is the expected completion flag (completion).
	Complete *bool `yaml:"complete,omitempty"`

	// Measure names a duration (duration): preparing, addressing,
	// preparing_non_overlapping, addressing_non_overlapping, completion,
	// estimated_preparation, estimated_addressing, estimated_completion.
	Measure string   `yaml:"measure,omitempty"`
	Value   *float64 `yaml:"value,omitempty"`

	// Summary metrics (summary). Unset fields are not checked.
	ActiveDuration          *float64 `yaml:"active_duration,omitempty"`
	RedundancyRatio         *float64 `yaml:"redundancy_ratio,omitempty"`
	JointActivityEfficiency *float64 `yaml:"joint_activity_efficiency,omitempty"`
	Instances               *int     `yaml:"instances,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertCompletion    = "completion"
	AssertDuration      = "duration"
	AssertLedger        = "ledger"
	AssertSummary       = "summary"
	AssertPending       = "pending"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the catalog path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the catalog path BEFORE validation
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && basePath != "" {
		scenario.Catalog = filepath.Join(basePath, scenario.Catalog)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating it.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Catalog == "" && s.Templates == "":
		return fmt.Errorf("one of catalog or templates is required")
	case s.Catalog != "" && s.Templates != "":
		return fmt.Errorf("catalog and templates are mutually exclusive")
	}

	if s.Catalog != "" {
		if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("catalog directory not found: %s", s.Catalog)
		}
	}

	if s.MaxPending < 0 {
		return fmt.Errorf("max_pending must be non-negative")
	}

	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, step := range s.Events {
		if step.Category == "" {
			return fmt.Errorf("events[%d]: category is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

var validMeasures = map[string]bool{
	"preparing":                  true,
	"addressing":                 true,
	"preparing_non_overlapping":  true,
	"addressing_non_overlapping": true,
	"completion":                 true,
	"estimated_preparation":      true,
	"estimated_addressing":       true,
	"estimated_completion":       true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Category == "" {
			return fmt.Errorf("assertions[%d]: category is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.URNs) == 0 {
			return fmt.Errorf("assertions[%d]: urns list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertCompletion:
		if a.URN == "" || a.Complete == nil {
			return fmt.Errorf("assertions[%d]: urn and complete are required for completion", index)
		}
	case AssertDuration:
		if a.URN == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: urn and value are required for duration", index)
		}
		if !validMeasures[a.Measure] {
			return fmt.Errorf("assertions[%d]: unknown measure %q", index, a.Measure)
		}
	case AssertLedger:
		if a.URN == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: urn and expect are required for ledger", index)
		}
		switch a.Category {
		case ir.CategoryAwareness, ir.CategoryPreparing, ir.CategoryAddressing:
		default:
			return fmt.Errorf("assertions[%d]: ledger category must be AWARENESS, PREPARING or ADDRESSING, got %q", index, a.Category)
		}
	case AssertSummary:
		if a.URN == "" {
			return fmt.Errorf("assertions[%d]: urn is required for summary", index)
		}
	case AssertPending:
		if a.Observer == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: observer and count are required for pending", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
