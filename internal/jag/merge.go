package jag

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/jagtrack/internal/ledger"
)

// ErrIdentityMismatch is returned when merging nodes of different identity.
var ErrIdentityMismatch = errors.New("identity mismatch")

// IDGenerator produces process-unique instance ids.
type IDGenerator interface {
	Generate() string
}

// Merge builds a consensus tree from two observers' views of the same
// activity. Neither input is modified and the result shares no state with
// them.
//
//   - ledgers: per-entity union; when both sides know an entity, b's
//     history is taken
//   - completion: complete if either side is, at the earlier time
//   - estimates: element-wise maximum
//   - children: a's order; each a child is merged with b's child of equal
//     identity, or cloned if b has none; b-only children are appended
func Merge(a, b *Node, ids IDGenerator) (*Node, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("merge: %w: nil node", ErrIdentityMismatch)
	}
	if !a.identity.Equal(b.identity) {
		slog.Error("refusing to merge activities of different identity",
			"a", a.identity.String(), "b", b.identity.String())
		return nil, fmt.Errorf("merge %s with %s: %w", a.identity, b.identity, ErrIdentityMismatch)
	}

	out, err := New(ids.Generate(), a.identity, a.connector)
	if err != nil {
		return nil, err
	}
	out.required = a.required
	out.awareness = ledger.Merge(a.awareness, b.awareness)
	out.preparing = ledger.Merge(a.preparing, b.preparing)
	out.addressing = ledger.Merge(a.addressing, b.addressing)

	out.complete = a.complete || b.complete
	out.completionTime = earliest(a.completionTime, b.completionTime)
	out.estimates.PreparingMS = max(a.estimates.PreparingMS, b.estimates.PreparingMS)
	out.estimates.AddressingMS = max(a.estimates.AddressingMS, b.estimates.AddressingMS)

	used := make(map[*Node]bool, len(b.children))
	for _, ac := range a.children {
		var bc *Node
		for _, cand := range b.children {
			if !used[cand] && cand.identity.Equal(ac.identity) {
				bc = cand
				break
			}
		}
		var child *Node
		if bc == nil {
			child = ac.clone(ids)
		} else {
			used[bc] = true
			child, err = Merge(ac, bc, ids)
			if err != nil {
				return nil, err
			}
		}
		out.AddChild(child, ac.required)
	}
	for _, bc := range b.children {
		if !used[bc] {
			out.AddChild(bc.clone(ids), bc.required)
		}
	}
	return out, nil
}

// earliest returns the smaller non-sentinel time, or -1.
func earliest(a, b int64) int64 {
	switch {
	case a == -1:
		return b
	case b == -1:
		return a
	default:
		return min(a, b)
	}
}

// clone deep-copies the subtree with fresh ids and no subscribers.
func (n *Node) clone(ids IDGenerator) *Node {
	c := &Node{
		id:             ids.Generate(),
		identity:       n.Identity(),
		connector:      n.connector,
		estimates:      n.estimates,
		awareness:      n.awareness.Clone(),
		preparing:      n.preparing.Clone(),
		addressing:     n.addressing.Clone(),
		complete:       n.complete,
		completionTime: n.completionTime,
	}
	for _, ch := range n.children {
		c.AddChild(ch.clone(ids), ch.required)
	}
	return c
}
