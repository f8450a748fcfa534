package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
	"github.com/roach88/jagtrack/internal/metrics"
)

// Consensus is the merged view of one activity across every observer
// that tracks it.
type Consensus struct {
	// Key is the activity's identity key.
	Key string
	// Node is the merged tree. It shares no state with any observer.
	Node *jag.Node
	// Instances maps each contributing observer to its instance id.
	Instances map[string]string
}

// Consensus merges the top-level activities of all observers by identity.
// Groups are ordered by first appearance, observers in first-seen order.
// An empty urn selects every activity.
func (e *Engine) Consensus(urn string) ([]Consensus, error) {
	type group struct {
		key   string
		nodes []*jag.Node
		ids   map[string]string
	}
	var groups []*group
	byKey := make(map[string]*group)

	for _, name := range e.order {
		for _, root := range e.observers[name].model.Roots() {
			if urn != "" && root.URN() != urn {
				continue
			}
			key, err := ir.IdentityKey(root.Identity())
			if err != nil {
				return nil, fmt.Errorf("consensus %s: %w", root, err)
			}
			g, ok := byKey[key]
			if !ok {
				g = &group{key: key, ids: make(map[string]string)}
				byKey[key] = g
				groups = append(groups, g)
			}
			g.nodes = append(g.nodes, root)
			g.ids[name] = root.ID()
		}
	}

	out := make([]Consensus, 0, len(groups))
	for _, g := range groups {
		merged, err := jag.Merge(g.nodes[0], g.nodes[0], e.ids)
		if err != nil {
			return nil, err
		}
		for _, n := range g.nodes[1:] {
			if merged, err = jag.Merge(merged, n, e.ids); err != nil {
				return nil, err
			}
		}
		out = append(out, Consensus{Key: g.key, Node: merged, Instances: g.ids})
	}
	return out, nil
}

// Summaries computes the team metrics of every consensus activity.
func (e *Engine) Summaries(urn string) ([]ir.SummaryPayload, error) {
	cs, err := e.Consensus(urn)
	if err != nil {
		return nil, err
	}
	out := make([]ir.SummaryPayload, 0, len(cs))
	for _, c := range cs {
		out = append(out, *metrics.Payload(c.Node, c.Instances))
	}
	return out, nil
}

func (e *Engine) summarize(ev ir.Inbound) error {
	summaries, err := e.Summaries(ev.Summary.URN)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	for i := range summaries {
		out := ir.Outbound{
			Category:  ir.CategorySummary,
			Observer:  ev.Observer,
			ElapsedMS: ev.ElapsedMS,
			Summary:   &summaries[i],
		}
		if err := e.publish(out); err != nil {
			slog.Warn("publish failed", "category", out.Category, "urn", summaries[i].Identity.URN, "error", err)
		}
	}
	slog.Info("summaries published", "observer", ev.Observer, "count", len(summaries))
	return nil
}
