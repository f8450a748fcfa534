// Package ledger keeps per-entity activity histories for one knowledge
// category of one activity.
//
// Each entity owns an ascending, Cover-reduced sequence of trackers. The
// most recent tracker may still be open; earlier ones are closed and kept
// for duration accounting.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/jagtrack/internal/interval"
)

var (
	// ErrNegativeTime is returned for reports with a negative elapsed time.
	ErrNegativeTime = errors.New("negative elapsed time")

	// ErrOutOfOrder is returned when a report is earlier than the last
	// report accepted for the same entity.
	ErrOutOfOrder = errors.New("report out of order")
)

// Ledger maps entity ids to their tracker history.
// The zero value is not usable; call New.
type Ledger struct {
	entries map[string][]interval.Tracker

	// lastAt is the time of the last accepted report per entity. Cover
	// reduction can fold a reopened tracker back onto an earlier start, so
	// the trackers alone do not bound the next report.
	lastAt map[string]int64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string][]interval.Tracker),
		lastAt:  make(map[string]int64),
	}
}

// Record applies a confidence report for entity at elapsed time at.
//
//   - unknown entity, confidence > 0: open a tracker
//   - open tracker, same confidence: no-op
//   - open tracker, confidence 0: close it at at
//   - open tracker, other confidence: close it and open a new one at at
//   - closed tracker, confidence > 0: open a new one
func (l *Ledger) Record(entity string, confidence float64, at int64) error {
	if at < 0 {
		return fmt.Errorf("record %s at %d: %w", entity, at, ErrNegativeTime)
	}

	if last, seen := l.lastAt[entity]; seen && at < last {
		return fmt.Errorf("record %s at %d before %d: %w", entity, at, last, ErrOutOfOrder)
	}

	history := l.entries[entity]
	if len(history) > 0 && at < boundary(history[len(history)-1]) {
		b := boundary(history[len(history)-1])
		return fmt.Errorf("record %s at %d before %d: %w", entity, at, b, ErrOutOfOrder)
	}

	if len(history) == 0 {
		if confidence <= 0 {
			return nil
		}
		l.lastAt[entity] = at
		return l.open(entity, confidence, at)
	}
	l.lastAt[entity] = at

	last := &history[len(history)-1]
	if last.IsOngoing() {
		if last.Confidence == confidence {
			return nil
		}
		if err := last.Period.Close(at); err != nil {
			return fmt.Errorf("record %s: %w", entity, err)
		}
		if confidence > 0 {
			return l.open(entity, confidence, at)
		}
		l.reduce(entity)
		return nil
	}

	if confidence > 0 {
		return l.open(entity, confidence, at)
	}
	return nil
}

func (l *Ledger) open(entity string, confidence float64, at int64) error {
	t, err := interval.NewTracker(entity, confidence, at)
	if err != nil {
		return fmt.Errorf("record %s: %w", entity, err)
	}
	l.entries[entity] = append(l.entries[entity], t)
	l.reduce(entity)
	return nil
}

func (l *Ledger) reduce(entity string) {
	l.entries[entity] = interval.Cover(l.entries[entity])
}

// boundary is the latest instant a tracker already accounts for.
func boundary(t interval.Tracker) int64 {
	if t.IsOngoing() {
		return t.Period.Start
	}
	return t.Period.End
}

// History returns a copy of entity's trackers in ascending order.
func (l *Ledger) History(entity string) []interval.Tracker {
	h := l.entries[entity]
	if len(h) == 0 {
		return nil
	}
	out := make([]interval.Tracker, len(h))
	copy(out, h)
	return out
}

// Latest returns entity's most recent tracker.
func (l *Ledger) Latest(entity string) (interval.Tracker, bool) {
	h := l.entries[entity]
	if len(h) == 0 {
		return interval.Tracker{}, false
	}
	return h[len(h)-1], true
}

// Knows reports whether entity has any recorded history.
func (l *Ledger) Knows(entity string) bool {
	return len(l.entries[entity]) > 0
}

// Entities returns all entity ids in sorted order.
func (l *Ledger) Entities() []string {
	out := make([]string, 0, len(l.entries))
	for e, h := range l.entries {
		if len(h) > 0 {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of entities with history.
func (l *Ledger) Len() int {
	return len(l.Entities())
}

// Trackers returns every tracker, grouped by entity in sorted entity order.
func (l *Ledger) Trackers() []interval.Tracker {
	var out []interval.Tracker
	for _, e := range l.Entities() {
		out = append(out, l.entries[e]...)
	}
	return out
}

// Snapshot projects each entity to 1 while it has an open tracker and 0
// otherwise. In a leaf ledger only the latest tracker can be open; in an
// aggregate view any leaf's open tracker counts.
func (l *Ledger) Snapshot() map[string]int {
	out := make(map[string]int, len(l.entries))
	for _, e := range l.Entities() {
		out[e] = 0
		for _, t := range l.entries[e] {
			if t.IsOngoing() {
				out[e] = 1
				break
			}
		}
	}
	return out
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := New()
	for e, h := range l.entries {
		c.entries[e] = append([]interval.Tracker(nil), h...)
	}
	for e, at := range l.lastAt {
		c.lastAt[e] = at
	}
	return c
}

// Merge returns the per-entity union of a and b. When both hold history
// for an entity, b's history is taken verbatim. Neither input is modified.
func Merge(a, b *Ledger) *Ledger {
	out := New()
	for _, src := range []*Ledger{a, b} {
		if src == nil {
			continue
		}
		for e, h := range src.entries {
			if len(h) == 0 {
				continue
			}
			if _, dup := out.entries[e]; dup {
				slog.Debug("ledger merge: entity history replaced", "entity", e)
			}
			out.entries[e] = append([]interval.Tracker(nil), h...)
			if at, ok := src.lastAt[e]; ok {
				out.lastAt[e] = at
			} else {
				delete(out.lastAt, e)
			}
		}
	}
	return out
}

// Concat gathers the histories of several ledgers without reduction.
// Used to build the aggregate view of an internal activity.
func Concat(ls ...*Ledger) *Ledger {
	out := New()
	for _, l := range ls {
		if l == nil {
			continue
		}
		for e, h := range l.entries {
			out.entries[e] = append(out.entries[e], h...)
		}
		for e, at := range l.lastAt {
			if prev, ok := out.lastAt[e]; !ok || at > prev {
				out.lastAt[e] = at
			}
		}
	}
	return out
}

// Cover returns every entity's trackers after Cover reduction.
func (l *Ledger) Cover() []interval.Tracker {
	var out []interval.Tracker
	for _, e := range l.Entities() {
		out = append(out, interval.Cover(l.entries[e])...)
	}
	return out
}

// UniqueSplit returns every entity's trackers after Unique-split reduction.
func (l *Ledger) UniqueSplit() []interval.Tracker {
	var out []interval.Tracker
	for _, e := range l.Entities() {
		out = append(out, interval.UniqueSplit(l.entries[e])...)
	}
	return out
}
