package ir

import (
	"errors"
	"fmt"
	"maps"
)

// Params are an activity's instantiation inputs or outputs,
// e.g. {"victim-id": "v12", "victim-type": "critical"}.
type Params map[string]string

// Clone returns a copy; a nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Equal treats nil and empty as the same.
func (p Params) Equal(o Params) bool {
	return maps.Equal(p, o)
}

// Contains reports whether every entry of sub is present in p.
func (p Params) Contains(sub Params) bool {
	for k, v := range sub {
		if got, ok := p[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Identity is the logical identity of an activity instance.
// Two observers' nodes with equal identity describe the same activity.
type Identity struct {
	URN     string `json:"urn" yaml:"urn"`
	Inputs  Params `json:"inputs" yaml:"inputs"`
	Outputs Params `json:"outputs" yaml:"outputs"`
}

// Equal compares URN, inputs and outputs.
func (id Identity) Equal(o Identity) bool {
	return id.URN == o.URN && id.Inputs.Equal(o.Inputs) && id.Outputs.Equal(o.Outputs)
}

func (id Identity) String() string {
	return fmt.Sprintf("%s%v", id.URN, map[string]string(id.Inputs))
}

// Execution is a connector's execution mode.
type Execution string

const (
	ExecutionSequential Execution = "sequential"
	ExecutionParallel   Execution = "parallel"
)

// Operator is a connector's completion operator.
type Operator string

const (
	// OperatorAnd completes when every child is complete.
	OperatorAnd Operator = "AND"
	// OperatorOr completes when any child is complete.
	OperatorOr Operator = "OR"
	// OperatorOnlyRequired completes when every required child is complete.
	// With no required children the check holds vacuously, so the node
	// completes on the first completion any child reports.
	OperatorOnlyRequired Operator = "ONLY_REQUIRED"
)

// ErrInvalidConnector marks a connector outside the known modes/operators.
// It indicates an invalid template catalog.
var ErrInvalidConnector = errors.New("invalid connector")

// Connector combines an execution mode with a completion operator.
type Connector struct {
	Execution Execution `json:"execution" yaml:"execution"`
	Operator  Operator  `json:"operator" yaml:"operator"`
}

// Validate rejects unknown execution modes and operators.
func (c Connector) Validate() error {
	switch c.Execution {
	case ExecutionSequential, ExecutionParallel:
	default:
		return fmt.Errorf("%w: execution %q", ErrInvalidConnector, c.Execution)
	}
	switch c.Operator {
	case OperatorAnd, OperatorOr, OperatorOnlyRequired:
	default:
		return fmt.Errorf("%w: operator %q", ErrInvalidConnector, c.Operator)
	}
	return nil
}

// ChildRef names a child template and whether it is required.
type ChildRef struct {
	URN      string `json:"urn" yaml:"urn"`
	Required bool   `json:"required" yaml:"required"`
}

// Estimates are a leaf template's expected durations in milliseconds.
type Estimates struct {
	PreparingMS  int64 `json:"preparing_ms" yaml:"preparing_ms"`
	AddressingMS int64 `json:"addressing_ms" yaml:"addressing_ms"`
}

// Template is one catalog entry. Templates are immutable after loading.
type Template struct {
	URN       string     `json:"urn" yaml:"urn"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Children  []ChildRef `json:"children,omitempty" yaml:"children,omitempty"`
	Connector Connector  `json:"connector" yaml:"connector"`
	Estimates Estimates  `json:"estimates" yaml:"estimates"`
}

// Description is the serialized shape of an activity tree, emitted on
// discovery and accepted to rebuild another observer's instance.
type Description struct {
	ID        string        `json:"id,omitempty" yaml:"id,omitempty"`
	URN       string        `json:"urn" yaml:"urn"`
	Required  bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Connector *Connector    `json:"connector,omitempty" yaml:"connector,omitempty"`
	Inputs    Params        `json:"inputs" yaml:"inputs"`
	Outputs   Params        `json:"outputs" yaml:"outputs"`
	Children  []Description `json:"children,omitempty" yaml:"children,omitempty"`
}

// Identity returns the described activity's identity.
func (d Description) Identity() Identity {
	return Identity{URN: d.URN, Inputs: d.Inputs, Outputs: d.Outputs}
}

// Category names an event stream. The string values are stable across
// the system.
type Category string

const (
	CategoryAwareness  Category = "AWARENESS"
	CategoryPreparing  Category = "PREPARING"
	CategoryAddressing Category = "ADDRESSING"
	CategoryCompletion Category = "COMPLETION"
	CategoryDiscovered Category = "DISCOVERED"
	CategorySummary    Category = "SUMMARY"
)

// ValidCategories lists every known category.
var ValidCategories = map[Category]bool{
	CategoryAwareness:  true,
	CategoryPreparing:  true,
	CategoryAddressing: true,
	CategoryCompletion: true,
	CategoryDiscovered: true,
	CategorySummary:    true,
}
