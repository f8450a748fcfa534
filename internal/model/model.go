// Package model holds one observer's activity forest.
//
// The forest is append-only: Create and CreateFromInstance add top-level
// trees, nothing removes them. Dispatch offers an inbound event to every
// node, children before their parent, through the adapter table. Every
// state change in the forest is published as an outbound update.
package model

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/jagtrack/internal/adapters"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
	"github.com/roach88/jagtrack/internal/registry"
)

// ErrInstanceNotFound is returned when an event targets an instance the
// observer has not created.
var ErrInstanceNotFound = errors.New("instance not found")

// Publisher receives outbound payloads.
type Publisher interface {
	Publish(ir.Outbound) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ir.Outbound) error

// Publish calls f.
func (f PublisherFunc) Publish(o ir.Outbound) error { return f(o) }

type discard struct{}

func (discard) Publish(ir.Outbound) error { return nil }

// Option configures a Model.
type Option func(*Model)

// WithPublisher sets the outbound publisher. The default discards.
func WithPublisher(p Publisher) Option {
	return func(m *Model) {
		m.publisher = p
	}
}

// Model is one observer's forest.
type Model struct {
	observer  string
	registry  *registry.Registry
	adapters  adapters.Table
	publisher Publisher
	roots     []*jag.Node
}

// New creates an empty model for observer.
func New(observer string, reg *registry.Registry, table adapters.Table, opts ...Option) *Model {
	m := &Model{
		observer:  observer,
		registry:  reg,
		adapters:  table,
		publisher: discard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observer returns the observer this model belongs to.
func (m *Model) Observer() string { return m.observer }

// Roots returns the top-level trees in creation order.
func (m *Model) Roots() []*jag.Node {
	out := make([]*jag.Node, len(m.roots))
	copy(out, m.roots)
	return out
}

// Get returns the top-level node with the given identity. A nil outputs
// matches any outputs.
func (m *Model) Get(urn string, inputs, outputs ir.Params) *jag.Node {
	for _, r := range m.roots {
		if r.URN() != urn || !r.Inputs().Equal(inputs) {
			continue
		}
		if outputs != nil && !r.Outputs().Equal(outputs) {
			continue
		}
		return r
	}
	return nil
}

// GetByURNRecursive is Get over every node of the forest, top-level trees
// first, each searched pre-order.
func (m *Model) GetByURNRecursive(urn string, inputs, outputs ir.Params) *jag.Node {
	if n := m.Get(urn, inputs, outputs); n != nil {
		return n
	}
	for _, r := range m.roots {
		found := r.Find(func(n *jag.Node) bool {
			return n.URN() == urn && n.Inputs().Equal(inputs) && (outputs == nil || n.Outputs().Equal(outputs))
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// GetByID returns the node with the given instance id anywhere in the
// forest.
func (m *Model) GetByID(id string) *jag.Node {
	for _, r := range m.roots {
		if n := r.FindByID(id); n != nil {
			return n
		}
	}
	return nil
}

// Create instantiates a template as a new top-level tree and publishes
// its discovery.
func (m *Model) Create(urn string, inputs, outputs ir.Params, at int64) (*jag.Node, error) {
	n, err := m.registry.Create(urn, inputs, outputs)
	if err != nil {
		return nil, err
	}
	m.adopt(n)
	desc := n.Describe()
	m.publish(ir.Outbound{Category: ir.CategoryDiscovered, Observer: m.observer, ElapsedMS: at, Discovery: &desc})
	slog.Debug("instance created", "observer", m.observer, "id", n.ID(), "urn", urn)
	return n, nil
}

// CreateFromInstance rebuilds a tree another observer described. The
// described ids are kept so that later events addressed to them resolve.
func (m *Model) CreateFromInstance(desc ir.Description) (*jag.Node, error) {
	n, err := m.registry.CreateFromDescription(desc)
	if err != nil {
		return nil, err
	}
	m.adopt(n)
	slog.Debug("instance rebuilt from description", "observer", m.observer, "id", n.ID(), "urn", desc.URN)
	return n, nil
}

func (m *Model) adopt(n *jag.Node) {
	m.roots = append(m.roots, n)
	n.Observe(m.notify)
}

// Resolve returns the first node ev targets, or ErrInstanceNotFound.
func (m *Model) Resolve(ev ir.Inbound) (*jag.Node, error) {
	if id := ev.InstanceID(); id != "" {
		if n := m.GetByID(id); n != nil {
			return n, nil
		}
		return nil, fmt.Errorf("observer %s: instance %s: %w", m.observer, id, ErrInstanceNotFound)
	}
	for _, r := range m.roots {
		if n := r.Find(func(n *jag.Node) bool { return adapters.Targets(n, ev) }); n != nil {
			return n, nil
		}
	}
	return nil, fmt.Errorf("observer %s: no instance for %s event: %w", m.observer, ev.Category, ErrInstanceNotFound)
}

// Dispatch offers ev to every node's adapter for ev.Category, children
// before their parent. Adapter errors are logged and returned joined;
// they never stop the traversal.
func (m *Model) Dispatch(ev ir.Inbound) error {
	var errs []error
	for _, r := range m.Roots() {
		r.Walk(func(n *jag.Node) {
			a, ok := m.adapters.Lookup(n.URN(), ev.Category)
			if !ok {
				return
			}
			if err := a(n, ev); err != nil {
				slog.Warn("adapter failed", "observer", m.observer, "node", n.ID(), "urn", n.URN(), "category", ev.Category, "error", err)
				errs = append(errs, fmt.Errorf("%s %s: %w", ev.Category, n, err))
			}
		})
	}
	return errors.Join(errs...)
}

// notify turns node events into outbound updates.
func (m *Model) notify(e jag.Event) {
	u := &ir.UpdatePayload{
		InstanceID: e.Node.ID(),
		ElapsedMS:  e.ElapsedMS,
		IsComplete: e.Node.IsComplete(),
		Snapshot:   map[string]int{},
	}
	switch e.Kind {
	case jag.KindAwareness:
		u.Snapshot = e.Node.Awareness().Snapshot()
	case jag.KindPreparing:
		u.Snapshot = e.Node.Preparing().Snapshot()
	case jag.KindAddressing:
		u.Snapshot = e.Node.Addressing().Snapshot()
	}
	m.publish(ir.Outbound{Category: e.Kind.Category(), Observer: m.observer, ElapsedMS: e.ElapsedMS, Update: u})
}

func (m *Model) publish(o ir.Outbound) {
	if err := m.publisher.Publish(o); err != nil {
		slog.Warn("publish failed", "observer", m.observer, "category", o.Category, "instance", o.InstanceID(), "error", err)
	}
}
