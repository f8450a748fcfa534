package harness

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/roach88/jagtrack/internal/engine"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
)

// tolerance for comparing durations and ratios.
const tolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the engine's final state.
type AssertionContext struct {
	Engine *engine.Engine
	Trace  []TraceEvent
}

// matchesEvent applies the observer, category and urn filters.
func matchesEvent(event TraceEvent, a Assertion) bool {
	if a.Category != "" && event.Outbound.Category != a.Category {
		return false
	}
	if a.Observer != "" && event.Outbound.Observer != a.Observer {
		return false
	}
	if a.URN != "" && event.URN != a.URN {
		return false
	}
	return true
}

// assertTraceContains checks that some publication matches the filters
// and, when Expect is set, carries exactly that snapshot.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if !matchesEvent(event, a) {
			continue
		}
		if a.Expect == nil {
			return nil
		}
		if event.Outbound.Update != nil && reflect.DeepEqual(event.Outbound.Update.Snapshot, a.Expect) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s publication about %q (observer %q) with snapshot %v", a.Category, a.URN, a.Observer, a.Expect),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first publications about each urn
// appear in the specified order. They don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if a.Category != "" && event.Outbound.Category != a.Category {
			continue
		}
		if a.Observer != "" && event.Outbound.Observer != a.Observer {
			continue
		}
		if _, seen := positions[event.URN]; !seen {
			positions[event.URN] = i + 1 // 1-indexed for readability
		}
	}

	for _, urn := range a.URNs {
		if positions[urn] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all urns present: %v", a.URNs),
				Actual:   fmt.Sprintf("missing urn: %s", urn),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.URNs); i++ {
		prev, curr := a.URNs[i-1], a.URNs[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("urns in order: %v", a.URNs),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count publications match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchesEvent(event, a) {
			count++
		}
	}

	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s publications about %q", *a.Count, a.Category, a.URN),
			Actual:   fmt.Sprintf("%d publications", count),
			Trace:    trace,
		}
	}
	return nil
}

// node finds the asserted activity in one observer's forest or, with no
// observer, in the merged consensus.
func (c *AssertionContext) node(a Assertion) (*jag.Node, error) {
	match := func(n *jag.Node) bool {
		return n.URN() == a.URN && n.Inputs().Contains(a.Inputs)
	}

	var roots []*jag.Node
	if a.Observer != "" {
		m := c.Engine.Model(a.Observer)
		if m == nil {
			return nil, fmt.Errorf("unknown observer %q", a.Observer)
		}
		roots = m.Roots()
	} else {
		cs, err := c.Engine.Consensus("")
		if err != nil {
			return nil, err
		}
		for _, cn := range cs {
			roots = append(roots, cn.Node)
		}
	}

	for _, r := range roots {
		if n := r.Find(match); n != nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no %s activity with inputs %v", a.URN, a.Inputs)
}

func scope(a Assertion) string {
	if a.Observer == "" {
		return "consensus"
	}
	return "observer " + a.Observer
}

func assertCompletion(c *AssertionContext, a Assertion) error {
	n, err := c.node(a)
	if err != nil {
		return &AssertionError{Type: AssertCompletion, Expected: a.URN + " in " + scope(a), Actual: err.Error()}
	}
	if n.IsComplete() != *a.Complete {
		return &AssertionError{
			Type:     AssertCompletion,
			Expected: fmt.Sprintf("%s complete=%t (%s)", a.URN, *a.Complete, scope(a)),
			Actual:   fmt.Sprintf("complete=%t", n.IsComplete()),
		}
	}
	return nil
}

func measure(n *jag.Node, name string) float64 {
	switch name {
	case "preparing":
		return n.PreparingDuration()
	case "addressing":
		return n.AddressingDuration()
	case "preparing_non_overlapping":
		return n.PreparingNonOverlappingDuration()
	case "addressing_non_overlapping":
		return n.AddressingNonOverlappingDuration()
	case "completion":
		return n.CompletionDuration()
	case "estimated_preparation":
		return n.EstimatedPreparationDuration()
	case "estimated_addressing":
		return n.EstimatedAddressingDuration()
	case "estimated_completion":
		return n.EstimatedCompletionDuration()
	}
	return math.NaN()
}

func assertDuration(c *AssertionContext, a Assertion) error {
	n, err := c.node(a)
	if err != nil {
		return &AssertionError{Type: AssertDuration, Expected: a.URN + " in " + scope(a), Actual: err.Error()}
	}
	got := measure(n, a.Measure)
	if math.Abs(got-*a.Value) > tolerance {
		return &AssertionError{
			Type:     AssertDuration,
			Expected: fmt.Sprintf("%s %s = %g s (%s)", a.URN, a.Measure, *a.Value, scope(a)),
			Actual:   fmt.Sprintf("%g s", got),
		}
	}
	return nil
}

func assertLedger(c *AssertionContext, a Assertion) error {
	n, err := c.node(a)
	if err != nil {
		return &AssertionError{Type: AssertLedger, Expected: a.URN + " in " + scope(a), Actual: err.Error()}
	}
	var got map[string]int
	switch a.Category {
	case ir.CategoryAwareness:
		got = n.Awareness().Snapshot()
	case ir.CategoryPreparing:
		got = n.Preparing().Snapshot()
	default:
		got = n.Addressing().Snapshot()
	}
	if !reflect.DeepEqual(got, a.Expect) {
		return &AssertionError{
			Type:     AssertLedger,
			Expected: fmt.Sprintf("%s %s ledger %s (%s)", a.URN, a.Category, formatSnapshot(a.Expect), scope(a)),
			Actual:   formatSnapshot(got),
		}
	}
	return nil
}

func assertSummary(c *AssertionContext, a Assertion) error {
	summaries, err := c.Engine.Summaries(a.URN)
	if err != nil {
		return err
	}
	var s *ir.SummaryPayload
	for i := range summaries {
		if summaries[i].Identity.Inputs.Contains(a.Inputs) {
			s = &summaries[i]
			break
		}
	}
	if s == nil {
		return &AssertionError{Type: AssertSummary, Expected: "summary of " + a.URN, Actual: "no such activity"}
	}

	checks := []struct {
		name string
		want *float64
		got  float64
	}{
		{"active_duration", a.ActiveDuration, s.ActiveDuration},
		{"redundancy_ratio", a.RedundancyRatio, s.RedundancyRatio},
		{"joint_activity_efficiency", a.JointActivityEfficiency, s.JointActivityEfficiency},
	}
	for _, chk := range checks {
		if chk.want != nil && math.Abs(chk.got-*chk.want) > tolerance {
			return &AssertionError{
				Type:     AssertSummary,
				Expected: fmt.Sprintf("%s %s = %g", a.URN, chk.name, *chk.want),
				Actual:   fmt.Sprintf("%g", chk.got),
			}
		}
	}
	if a.Instances != nil && len(s.ObserverInstances) != *a.Instances {
		return &AssertionError{
			Type:     AssertSummary,
			Expected: fmt.Sprintf("%s merged from %d observers", a.URN, *a.Instances),
			Actual:   formatParams(s.ObserverInstances),
		}
	}
	return nil
}

func assertPending(c *AssertionContext, a Assertion) error {
	if got := c.Engine.Pending(a.Observer); got != *a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending events for %s", *a.Count, a.Observer),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(actx.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(actx.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(actx.Trace, assertion)
		case AssertCompletion:
			err = assertCompletion(actx, assertion)
		case AssertDuration:
			err = assertDuration(actx, assertion)
		case AssertLedger:
			err = assertLedger(actx, assertion)
		case AssertSummary:
			err = assertSummary(actx, assertion)
		case AssertPending:
			err = assertPending(actx, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}

	return errors
}
