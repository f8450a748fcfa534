package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/jagtrack/internal/ir"
)

// TraceEvent is one recorded publication.
type TraceEvent struct {
	// Seq is the publication's logical time; Cause is the observation
	// whose processing produced it.
	Seq   int64 `json:"seq"`
	Cause int64 `json:"cause"`

	// URN of the activity the publication is about. Update payloads only
	// carry an instance id; the harness resolves it.
	URN string `json:"urn"`

	Outbound ir.Outbound `json:"outbound"`
}

// String renders the event as one stable trace line, e.g.
//
//	seq=4 cause=3 ADDRESSING obs-a @1000 jag-3 urn:unlock-victim complete=false {p1:1}
func (e TraceEvent) String() string {
	o := e.Outbound
	head := fmt.Sprintf("seq=%d cause=%d %s %s @%d", e.Seq, e.Cause, o.Category, o.Observer, o.ElapsedMS)
	switch {
	case o.Discovery != nil:
		return fmt.Sprintf("%s %s %s %s", head, o.Discovery.ID, o.Discovery.URN, formatParams(o.Discovery.Inputs))
	case o.Update != nil:
		return fmt.Sprintf("%s %s %s complete=%t %s", head, o.Update.InstanceID, e.URN, o.Update.IsComplete, formatSnapshot(o.Update.Snapshot))
	case o.Summary != nil:
		s := o.Summary
		return fmt.Sprintf("%s %s %s active=%.3f redundancy=%.3f efficiency=%.3f instances=%s",
			head, s.Identity.URN, formatParams(s.Identity.Inputs),
			s.ActiveDuration, s.RedundancyRatio, s.JointActivityEfficiency,
			formatParams(s.ObserverInstances))
	}
	return head
}

func formatParams(p map[string]string) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + p[k]
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatSnapshot(s map[string]int) string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%d", k, s[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every event behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains all publications in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Summaries are the consensus metrics at the end of the scenario.
	Summaries []ir.SummaryPayload `json:"summaries,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Lines renders the trace, one line per publication.
func (r *Result) Lines() []string {
	out := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		out[i] = e.String()
	}
	return out
}
