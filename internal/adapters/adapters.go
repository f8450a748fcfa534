// Package adapters translates inbound events into Activity Node updates.
//
// An Adapter is looked up by template URN and event category. Dispatch
// offers every event to every node with an adapter for its URN; each
// adapter decides whether the event concerns its node and, if so, calls
// the node's generic update operations.
package adapters

import (
	"fmt"
	"maps"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
)

// Adapter applies ev to n when ev concerns n. Events about other nodes
// are ignored without error.
type Adapter func(n *jag.Node, ev ir.Inbound) error

// Table maps template URN to per-category adapters.
// A table is built at startup and read-only during processing.
type Table map[string]map[ir.Category]Adapter

// Register sets the adapter for (urn, category), replacing any previous one.
func (t Table) Register(urn string, cat ir.Category, a Adapter) {
	if t[urn] == nil {
		t[urn] = make(map[ir.Category]Adapter)
	}
	t[urn][cat] = a
}

// Lookup returns the adapter for (urn, category).
func (t Table) Lookup(urn string, cat ir.Category) (Adapter, bool) {
	a, ok := t[urn][cat]
	return a, ok && a != nil
}

// Merge returns a new table holding t's adapters overridden by o's.
func (t Table) Merge(o Table) Table {
	out := make(Table, len(t)+len(o))
	for _, src := range []Table{t, o} {
		for urn, byCat := range src {
			if out[urn] == nil {
				out[urn] = make(map[ir.Category]Adapter, len(byCat))
			}
			maps.Copy(out[urn], byCat)
		}
	}
	return out
}

// Generic builds identity-matching adapters for the four update
// categories of every urn.
func Generic(urns ...string) Table {
	t := make(Table, len(urns))
	for _, urn := range urns {
		t.Register(urn, ir.CategoryAwareness, Awareness)
		t.Register(urn, ir.CategoryPreparing, Preparing)
		t.Register(urn, ir.CategoryAddressing, Addressing)
		t.Register(urn, ir.CategoryCompletion, Completion)
	}
	return t
}

// Targets reports whether ev is about n: an explicit instance id must
// equal n's id; otherwise the URN must match and n's inputs must contain
// the event's inputs.
func Targets(n *jag.Node, ev ir.Inbound) bool {
	var id, urn string
	var inputs ir.Params
	switch {
	case ev.Activity != nil:
		id, urn, inputs = ev.Activity.InstanceID, ev.Activity.URN, ev.Activity.Inputs
	case ev.Completion != nil:
		id, urn, inputs = ev.Completion.InstanceID, ev.Completion.URN, ev.Completion.Inputs
	default:
		return false
	}
	if id != "" {
		return n.ID() == id
	}
	return urn == n.URN() && n.Inputs().Contains(inputs)
}

// Awareness records the reported subject's awareness of n and its subtree.
func Awareness(n *jag.Node, ev ir.Inbound) error {
	if !Targets(n, ev) || ev.Activity == nil {
		return nil
	}
	return n.UpdateAwareness(ev.Observer, ev.Activity.Subject, ev.Activity.Confidence, ev.ElapsedMS)
}

// Preparing records the reported subject's preparation for n.
func Preparing(n *jag.Node, ev ir.Inbound) error {
	if !Targets(n, ev) || ev.Activity == nil {
		return nil
	}
	return n.UpdatePreparing(ev.Observer, ev.Activity.Subject, ev.Activity.Confidence, ev.ElapsedMS)
}

// Addressing records the reported subject addressing n.
func Addressing(n *jag.Node, ev ir.Inbound) error {
	if !Targets(n, ev) || ev.Activity == nil {
		return nil
	}
	return n.UpdateAddressing(ev.Observer, ev.Activity.Subject, ev.Activity.Confidence, ev.ElapsedMS)
}

// Completion sets n's completion flag. Reports on internal nodes are
// refused: their completion derives from their children.
func Completion(n *jag.Node, ev ir.Inbound) error {
	if !Targets(n, ev) || ev.Completion == nil {
		return nil
	}
	if !n.IsLeaf() {
		return fmt.Errorf("completion report for internal node %s: completion is derived from children", n)
	}
	n.UpdateCompletionStatus(ev.Observer, ev.Completion.IsComplete, ev.ElapsedMS)
	return nil
}
