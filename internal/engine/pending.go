package engine

import (
	"github.com/roach88/jagtrack/internal/ir"
)

// PendingBuffer holds one observer's orphan events: activity and
// completion reports that arrived before the instance they target was
// discovered.
//
// Each observer has its own PendingBuffer. The engine retries the buffer
// after every discovery by that observer, in arrival order.
//
// The buffer is bounded. When full, Push evicts the oldest event so that
// an observer reporting on activities nobody ever announces cannot grow
// the engine without limit.
type PendingBuffer struct {
	limit  int
	events []ir.Inbound
}

// NewPendingBuffer creates an empty buffer holding at most limit events.
// A limit below 1 is treated as 1.
func NewPendingBuffer(limit int) *PendingBuffer {
	if limit < 1 {
		limit = 1
	}
	return &PendingBuffer{limit: limit}
}

// Push appends ev. If the buffer was full, the oldest event is evicted and
// returned with true.
func (p *PendingBuffer) Push(ev ir.Inbound) (ir.Inbound, bool) {
	var dropped ir.Inbound
	evicted := false
	if len(p.events) >= p.limit {
		dropped = p.events[0]
		p.events[0] = ir.Inbound{}
		p.events = p.events[1:]
		evicted = true
	}
	p.events = append(p.events, ev)
	return dropped, evicted
}

// Retry offers every buffered event to try in arrival order. Events for
// which try returns false stay buffered, in their original order.
func (p *PendingBuffer) Retry(try func(ir.Inbound) bool) int {
	kept := p.events[:0]
	resolved := 0
	for _, ev := range p.events {
		if try(ev) {
			resolved++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(p.events); i++ {
		p.events[i] = ir.Inbound{}
	}
	p.events = kept
	return resolved
}

// Drain removes and returns every buffered event.
func (p *PendingBuffer) Drain() []ir.Inbound {
	out := p.events
	p.events = nil
	return out
}

// Len returns the number of buffered events.
func (p *PendingBuffer) Len() int {
	return len(p.events)
}

// Limit returns the buffer bound.
func (p *PendingBuffer) Limit() int {
	return p.limit
}
