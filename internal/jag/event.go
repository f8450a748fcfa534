package jag

import "github.com/roach88/jagtrack/internal/ir"

// Kind is the closed set of node events.
type Kind int

const (
	// KindAwareness is emitted after an awareness report.
	KindAwareness Kind = iota + 1
	// KindPreparing is emitted after a preparing report.
	KindPreparing
	// KindAddressing is emitted after an addressing report.
	KindAddressing
	// KindCompletion is emitted when a node first becomes complete.
	KindCompletion
)

// Category maps the kind onto its stable event category.
func (k Kind) Category() ir.Category {
	switch k {
	case KindAwareness:
		return ir.CategoryAwareness
	case KindPreparing:
		return ir.CategoryPreparing
	case KindAddressing:
		return ir.CategoryAddressing
	case KindCompletion:
		return ir.CategoryCompletion
	}
	return ""
}

func (k Kind) String() string {
	if c := k.Category(); c != "" {
		return string(c)
	}
	return "UNKNOWN"
}

// Event describes a state change of Node.
//
// Subject and Confidence are set for awareness, preparing and addressing
// events. Complete is set for completion events.
type Event struct {
	Kind       Kind
	Node       *Node
	Observer   string
	Subject    string
	Confidence float64
	ElapsedMS  int64
	Complete   bool
}

// Handler receives node events. Handlers run synchronously on the
// goroutine that changed the node.
type Handler func(Event)

// bus holds a node's subscribers. Subscriptions only ever flow from a
// child to its parent (AddChild) or from a node to an external collector
// (Observe); a node never subscribes to its own descendants' parents, so
// the notification graph stays acyclic.
type bus struct {
	all    []Handler
	byKind map[Kind][]Handler
}

func (b *bus) onAll(h Handler) {
	b.all = append(b.all, h)
}

func (b *bus) on(k Kind, h Handler) {
	if b.byKind == nil {
		b.byKind = make(map[Kind][]Handler)
	}
	b.byKind[k] = append(b.byKind[k], h)
}

// emit delivers e to catch-all subscribers first, then to the kind's own.
func (b *bus) emit(e Event) {
	for _, h := range b.all {
		h(e)
	}
	for _, h := range b.byKind[e.Kind] {
		h(e)
	}
}
