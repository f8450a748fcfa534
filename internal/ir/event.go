package ir

import "fmt"

// ActivityReport is the body of AWARENESS, PREPARING and ADDRESSING
// events: Subject was (Confidence > 0) or stopped being (0) involved in
// the activity.
//
// The target is either an explicit InstanceID or a URN plus an inputs
// subset. Adapters decide which nodes a report applies to.
type ActivityReport struct {
	InstanceID string  `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	URN        string  `json:"urn,omitempty" yaml:"urn,omitempty"`
	Inputs     Params  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Subject    string  `json:"subject" yaml:"subject"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// CompletionReport is the body of COMPLETION events.
type CompletionReport struct {
	InstanceID string `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	URN        string `json:"urn,omitempty" yaml:"urn,omitempty"`
	Inputs     Params `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	IsComplete bool   `json:"is_complete" yaml:"is_complete"`
}

// SummaryRequest is the body of inbound SUMMARY events. It asks the engine
// to merge every observer's instances and publish metrics.
type SummaryRequest struct {
	URN string `json:"urn,omitempty" yaml:"urn,omitempty"` // empty means all
}

// Inbound is one event delivered to the engine.
// Exactly one body pointer is set, matching Category.
type Inbound struct {
	Category  Category `json:"category" yaml:"category"`
	Observer  string   `json:"observer" yaml:"observer"`
	ElapsedMS int64    `json:"elapsed_ms" yaml:"elapsed_ms"`

	Activity   *ActivityReport   `json:"activity,omitempty" yaml:"activity,omitempty"`
	Completion *CompletionReport `json:"completion,omitempty" yaml:"completion,omitempty"`
	Discovery  *Description      `json:"discovery,omitempty" yaml:"discovery,omitempty"`
	Summary    *SummaryRequest   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// InstanceID returns the explicit target instance, if any.
func (e Inbound) InstanceID() string {
	switch {
	case e.Activity != nil:
		return e.Activity.InstanceID
	case e.Completion != nil:
		return e.Completion.InstanceID
	}
	return ""
}

// Validate checks that the body matches the category.
func (e Inbound) Validate() error {
	if e.Observer == "" {
		return fmt.Errorf("%s event: observer is required", e.Category)
	}
	if e.ElapsedMS < 0 {
		return fmt.Errorf("%s event: negative elapsed time %d", e.Category, e.ElapsedMS)
	}
	var ok bool
	switch e.Category {
	case CategoryAwareness, CategoryPreparing, CategoryAddressing:
		ok = e.Activity != nil && e.Completion == nil && e.Discovery == nil && e.Summary == nil
	case CategoryCompletion:
		ok = e.Completion != nil && e.Activity == nil && e.Discovery == nil && e.Summary == nil
	case CategoryDiscovered:
		ok = e.Discovery != nil && e.Activity == nil && e.Completion == nil && e.Summary == nil
	case CategorySummary:
		ok = e.Summary != nil && e.Activity == nil && e.Completion == nil && e.Discovery == nil
	default:
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !ok {
		return fmt.Errorf("%s event: body does not match category", e.Category)
	}
	return nil
}

// UpdatePayload is published on AWARENESS, PREPARING, ADDRESSING and
// COMPLETION changes. Snapshot is the category ledger's 0/1 projection of
// whether each entity is currently active.
type UpdatePayload struct {
	InstanceID string         `json:"instance_id" yaml:"instance_id"`
	ElapsedMS  int64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	IsComplete bool           `json:"is_complete" yaml:"is_complete"`
	Snapshot   map[string]int `json:"snapshot" yaml:"snapshot"`
}

// SummaryPayload is published for each merged activity.
// Durations are in seconds; -1 means undefined.
type SummaryPayload struct {
	Identity                Identity          `json:"identity" yaml:"identity"`
	ObserverInstances       map[string]string `json:"observer_instances" yaml:"observer_instances"`
	ActiveDuration          float64           `json:"active_duration" yaml:"active_duration"`
	JointActivityEfficiency float64           `json:"joint_activity_efficiency" yaml:"joint_activity_efficiency"`
	RedundancyRatio         float64           `json:"redundancy_ratio" yaml:"redundancy_ratio"`
}

// Outbound is one event published by a per-observer model or the engine.
// Exactly one body pointer is set, matching Category.
type Outbound struct {
	Category  Category `json:"category" yaml:"category"`
	Observer  string   `json:"observer" yaml:"observer"`
	ElapsedMS int64    `json:"elapsed_ms" yaml:"elapsed_ms"`

	Discovery *Description    `json:"discovery,omitempty" yaml:"discovery,omitempty"`
	Update    *UpdatePayload  `json:"update,omitempty" yaml:"update,omitempty"`
	Summary   *SummaryPayload `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// InstanceID returns the instance the payload is about, if any.
func (o Outbound) InstanceID() string {
	switch {
	case o.Discovery != nil:
		return o.Discovery.ID
	case o.Update != nil:
		return o.Update.InstanceID
	}
	return ""
}
