// Package jag implements joint activity graph nodes.
//
// A Node is one instantiated task (template URN plus instantiation
// parameters). Leaves own per-entity ledgers for awareness, preparing and
// addressing; internal nodes derive their views from descendant leaves and
// their completion from their children through the connector operator.
//
// State changes are announced as typed events. AddChild subscribes the
// parent to the child so that:
//
//   - every child event is re-emitted on the parent unchanged, reaching
//     collectors attached to the root
//   - a child's addressing report is re-applied to the parent for the same
//     subject and confidence
//   - a child's completion makes the parent re-check its criterion
//
// Nodes are not safe for concurrent use. A tree is owned by one observer
// and mutated from that observer's dispatch path only.
package jag

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/ledger"
)

// Node is one activity instance.
type Node struct {
	id        string
	identity  ir.Identity
	connector ir.Connector
	required  bool
	children  []*Node
	estimates ir.Estimates

	awareness  *ledger.Ledger
	preparing  *ledger.Ledger
	addressing *ledger.Ledger

	complete       bool
	completionTime int64

	bus bus
}

// New creates an incomplete, childless node.
// The connector must be valid; an invalid one means the catalog is broken.
func New(id string, identity ir.Identity, connector ir.Connector) (*Node, error) {
	if err := connector.Validate(); err != nil {
		return nil, fmt.Errorf("node %s: %w", identity.URN, err)
	}
	return &Node{
		id: id,
		identity: ir.Identity{
			URN:     identity.URN,
			Inputs:  identity.Inputs.Clone(),
			Outputs: identity.Outputs.Clone(),
		},
		connector:      connector,
		awareness:      ledger.New(),
		preparing:      ledger.New(),
		addressing:     ledger.New(),
		completionTime: -1,
	}, nil
}

// ID returns the process-unique instance id.
func (n *Node) ID() string { return n.id }

// URN returns the template id.
func (n *Node) URN() string { return n.identity.URN }

// Identity returns a copy of the node's logical identity.
func (n *Node) Identity() ir.Identity {
	return ir.Identity{
		URN:     n.identity.URN,
		Inputs:  n.identity.Inputs.Clone(),
		Outputs: n.identity.Outputs.Clone(),
	}
}

// Inputs returns a copy of the instantiation inputs.
func (n *Node) Inputs() ir.Params { return n.identity.Inputs.Clone() }

// Outputs returns a copy of the instantiation outputs.
func (n *Node) Outputs() ir.Params { return n.identity.Outputs.Clone() }

// Connector returns the execution mode and completion operator.
func (n *Node) Connector() ir.Connector { return n.connector }

// Required reports whether the parent's ONLY_REQUIRED criterion counts
// this node.
func (n *Node) Required() bool { return n.required }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Children returns the ordered children.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// SetEstimates sets the expected durations. Only leaf estimates count.
func (n *Node) SetEstimates(e ir.Estimates) { n.estimates = e }

// IsComplete reports the completion flag.
func (n *Node) IsComplete() bool { return n.complete }

// CompletionTime returns the elapsed ms of the first completion, or -1.
func (n *Node) CompletionTime() int64 { return n.completionTime }

// Observe attaches an external collector receiving this node's events and,
// through the forwarding chain, every descendant's.
func (n *Node) Observe(h Handler) {
	n.bus.onAll(h)
}

// AddChild appends child and subscribes n to its events.
func (n *Node) AddChild(child *Node, required bool) {
	child.required = required
	n.children = append(n.children, child)

	child.bus.onAll(func(e Event) {
		n.bus.emit(e)
	})
	child.bus.on(KindAddressing, func(e Event) {
		if e.Node != child {
			return
		}
		if err := n.UpdateAddressing(e.Observer, e.Subject, e.Confidence, e.ElapsedMS); err != nil {
			slog.Warn("addressing propagation failed", "node", n.id, "urn", n.URN(), "error", err)
		}
	})
	child.bus.on(KindCompletion, func(e Event) {
		if e.Node != child {
			return
		}
		done, err := n.ShouldBeComplete()
		if err != nil {
			slog.Error("completion criterion failed", "node", n.id, "urn", n.URN(), "error", err)
			return
		}
		if done {
			n.UpdateCompletionStatus(e.Observer, true, e.ElapsedMS)
		}
	})
}

// UpdateAwareness records that subject is aware (confidence > 0) of the
// activity and recurses into every child, whatever the connector.
// Children are updated first, so a node's event carries its final view.
func (n *Node) UpdateAwareness(observer, subject string, confidence float64, at int64) error {
	var errs []error
	for _, c := range n.children {
		if err := c.UpdateAwareness(observer, subject, confidence, at); err != nil {
			errs = append(errs, err)
		}
	}
	if n.IsLeaf() {
		if err := n.awareness.Record(subject, confidence, at); err != nil {
			return fmt.Errorf("awareness of %s: %w", n.URN(), err)
		}
	}
	n.bus.emit(Event{Kind: KindAwareness, Node: n, Observer: observer, Subject: subject, Confidence: confidence, ElapsedMS: at})
	return errors.Join(errs...)
}

// UpdatePreparing records that subject is preparing for the activity.
// It does not recurse.
func (n *Node) UpdatePreparing(observer, subject string, confidence float64, at int64) error {
	if n.IsLeaf() {
		if err := n.preparing.Record(subject, confidence, at); err != nil {
			return fmt.Errorf("preparing of %s: %w", n.URN(), err)
		}
	}
	n.bus.emit(Event{Kind: KindPreparing, Node: n, Observer: observer, Subject: subject, Confidence: confidence, ElapsedMS: at})
	return nil
}

// UpdateAddressing records that subject is addressing the activity.
// Parents re-apply the report to themselves for the same subject.
func (n *Node) UpdateAddressing(observer, subject string, confidence float64, at int64) error {
	if n.IsLeaf() {
		if err := n.addressing.Record(subject, confidence, at); err != nil {
			return fmt.Errorf("addressing of %s: %w", n.URN(), err)
		}
	}
	n.bus.emit(Event{Kind: KindAddressing, Node: n, Observer: observer, Subject: subject, Confidence: confidence, ElapsedMS: at})
	return nil
}

// UpdateCompletionStatus sets the completion flag. The first transition to
// complete records at and emits a completion event; marking the node
// incomplete clears the completion time silently.
func (n *Node) UpdateCompletionStatus(observer string, complete bool, at int64) {
	n.complete = complete
	if !complete {
		n.completionTime = -1
		return
	}
	if n.completionTime != -1 {
		return
	}
	n.completionTime = at
	n.bus.emit(Event{Kind: KindCompletion, Node: n, Observer: observer, ElapsedMS: at, Complete: true})
}

// ShouldBeComplete evaluates the connector's completion operator over the
// children. A leaf always satisfies its own criterion.
func (n *Node) ShouldBeComplete() (bool, error) {
	if n.IsLeaf() {
		return true, nil
	}
	switch n.connector.Operator {
	case ir.OperatorAnd:
		for _, c := range n.children {
			if !c.complete {
				return false, nil
			}
		}
		return true, nil
	case ir.OperatorOr:
		for _, c := range n.children {
			if c.complete {
				return true, nil
			}
		}
		return false, nil
	case ir.OperatorOnlyRequired:
		for _, c := range n.children {
			if c.required && !c.complete {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("node %s: %w: operator %q", n.URN(), ir.ErrInvalidConnector, n.connector.Operator)
	}
}

// Awareness returns the awareness ledger. Internal nodes return a view
// gathered from descendant leaves; mutating it has no effect on the tree.
func (n *Node) Awareness() *ledger.Ledger {
	return n.view(func(m *Node) *ledger.Ledger { return m.awareness })
}

// Preparing returns the preparing ledger or its derived view.
func (n *Node) Preparing() *ledger.Ledger {
	return n.view(func(m *Node) *ledger.Ledger { return m.preparing })
}

// Addressing returns the addressing ledger or its derived view.
func (n *Node) Addressing() *ledger.Ledger {
	return n.view(func(m *Node) *ledger.Ledger { return m.addressing })
}

func (n *Node) view(pick func(*Node) *ledger.Ledger) *ledger.Ledger {
	if n.IsLeaf() {
		return pick(n)
	}
	var ls []*ledger.Ledger
	for _, leaf := range n.Leaves() {
		ls = append(ls, pick(leaf))
	}
	return ledger.Concat(ls...)
}

// Leaves returns the descendant leaves in tree order (n itself if leaf).
func (n *Node) Leaves() []*Node {
	if n.IsLeaf() {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Walk visits the subtree depth-first, children before their parent.
func (n *Node) Walk(fn func(*Node)) {
	for _, c := range n.children {
		c.Walk(fn)
	}
	fn(n)
}

// Find returns the first node in the subtree (pre-order) matching match.
func (n *Node) Find(match func(*Node) bool) *Node {
	if match(n) {
		return n
	}
	for _, c := range n.children {
		if found := c.Find(match); found != nil {
			return found
		}
	}
	return nil
}

// FindByID returns the node with instance id id in the subtree.
func (n *Node) FindByID(id string) *Node {
	return n.Find(func(m *Node) bool { return m.id == id })
}

// Describe serializes the tree shape for discovery payloads.
func (n *Node) Describe() ir.Description {
	c := n.connector
	d := ir.Description{
		ID:        n.id,
		URN:       n.identity.URN,
		Required:  n.required,
		Connector: &c,
		Inputs:    n.identity.Inputs.Clone(),
		Outputs:   n.identity.Outputs.Clone(),
	}
	for _, child := range n.children {
		d.Children = append(d.Children, child.Describe())
	}
	return d
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.identity, n.id)
}
