package interval

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Tracker records that Subject was active with the given Confidence
// during Period.
//
// Contributors is the number of simultaneous contributions the tracker
// stands for. Trackers created from reports always carry 1; only
// UniqueSplit produces segments with more.
type Tracker struct {
	Subject      string  `json:"subject"`
	Confidence   float64 `json:"confidence"`
	Period       Period  `json:"period"`
	Contributors int     `json:"contributors"`
}

// NewTracker opens a tracker for subject at start.
func NewTracker(subject string, confidence float64, start int64) (Tracker, error) {
	p, err := OpenPeriod(start)
	if err != nil {
		return Tracker{}, err
	}
	return Tracker{Subject: subject, Confidence: confidence, Period: p, Contributors: 1}, nil
}

// IsOngoing reports whether the tracker's period is still open.
func (t Tracker) IsOngoing() bool {
	return t.Period.IsOngoing()
}

func (t Tracker) weight() int64 {
	if t.Contributors < 1 {
		return 1
	}
	return int64(t.Contributors)
}

func (t Tracker) String() string {
	return fmt.Sprintf("%s@%g%s x%d", t.Subject, t.Confidence, t.Period, t.weight())
}

type trackerKey struct {
	subject    string
	confidence float64
}

func keyOf(t Tracker) trackerKey {
	return trackerKey{subject: t.Subject, confidence: t.Confidence}
}

// Overlaps reports whether two trackers' periods intersect.
//
// Closed periods overlap when their ranges intersect; a shared boundary
// counts. An ongoing period has no upper bound, so it overlaps a closed
// period ending at or after its start, and any other ongoing period.
func Overlaps(a, b Tracker) bool {
	return a.Period.Start <= b.Period.upper() && b.Period.Start <= a.Period.upper()
}

// Union returns the smallest tracker covering both a and b.
// The result takes a's subject and confidence.
func Union(a, b Tracker) Tracker {
	start := min(a.Period.Start, b.Period.Start)
	end := Ongoing
	if !a.IsOngoing() && !b.IsOngoing() {
		end = max(a.Period.End, b.Period.End)
	}
	return Tracker{
		Subject:      a.Subject,
		Confidence:   a.Confidence,
		Period:       Period{Start: start, End: end},
		Contributors: 1,
	}
}

// Cover merges overlapping trackers that share subject and confidence into
// their unions. The result is sorted by start, then end.
//
// When no such overlap exists the input is returned unchanged.
func Cover(ts []Tracker) []Tracker {
	groups, order := group(ts)
	if !anyOverlap(groups) {
		slog.Debug("cover reduction skipped: no overlap", "trackers", len(ts))
		return clone(ts)
	}

	out := make([]Tracker, 0, len(ts))
	for _, k := range order {
		var merged []Tracker
		for _, t := range groups[k] {
			if n := len(merged); n > 0 && Overlaps(merged[n-1], t) {
				merged[n-1] = Union(merged[n-1], t)
				continue
			}
			merged = append(merged, t)
		}
		out = append(out, merged...)
	}
	sortTrackers(out)
	return out
}

// UniqueSplit partitions overlapping trackers that share subject and
// confidence into disjoint segments. Each segment's Contributors is the
// total weight of the trackers covering it, so TotalDuration over the
// result equals the sum of the inputs' durations while no calendar instant
// appears twice.
//
// When no such overlap exists the input is returned unchanged.
func UniqueSplit(ts []Tracker) []Tracker {
	groups, order := group(ts)
	if !anyOverlap(groups) {
		slog.Debug("unique-split reduction skipped: no overlap", "trackers", len(ts))
		return clone(ts)
	}

	out := make([]Tracker, 0, len(ts)+2)
	for _, k := range order {
		out = append(out, split(k, groups[k])...)
	}
	sortTrackers(out)
	return out
}

// split sweeps one key group's boundaries and emits weighted segments.
func split(k trackerKey, ts []Tracker) []Tracker {
	var bounds []int64
	for _, t := range ts {
		bounds = append(bounds, t.Period.Start)
		if !t.IsOngoing() {
			bounds = append(bounds, t.Period.End)
		}
	}
	bounds = uniqueSorted(bounds)

	var segs []Tracker
	emit := func(start, end int64, weight int64) {
		if weight == 0 {
			return
		}
		if n := len(segs); n > 0 {
			last := &segs[n-1]
			if last.Period.End == start && int64(last.Contributors) == weight {
				last.Period.End = end
				return
			}
		}
		segs = append(segs, Tracker{
			Subject:      k.subject,
			Confidence:   k.confidence,
			Period:       Period{Start: start, End: end},
			Contributors: int(weight),
		})
	}

	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		var w int64
		for _, t := range ts {
			if t.Period.Start <= lo && t.Period.upper() >= hi {
				w += t.weight()
			}
		}
		emit(lo, hi, w)
	}

	last := bounds[len(bounds)-1]
	var open int64
	for _, t := range ts {
		if t.IsOngoing() && t.Period.Start <= last {
			open += t.weight()
		}
	}
	emit(last, Ongoing, open)

	// A group made only of zero-length trackers produces no segment above.
	if len(segs) == 0 {
		return clone(ts)
	}
	return segs
}

// TotalDuration sums the weighted durations of closed trackers in
// milliseconds. It returns -1 when ts is empty or every tracker is open.
func TotalDuration(ts []Tracker) int64 {
	var total int64
	closed := false
	for _, t := range ts {
		if t.IsOngoing() {
			continue
		}
		closed = true
		total += t.Period.Duration() * t.weight()
	}
	if !closed {
		return -1
	}
	return total
}

// group splits ts by (subject, confidence), each group sorted.
// order lists keys by first appearance for deterministic output.
func group(ts []Tracker) (map[trackerKey][]Tracker, []trackerKey) {
	groups := make(map[trackerKey][]Tracker)
	var order []trackerKey
	for _, t := range ts {
		k := keyOf(t)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}
	for _, g := range groups {
		sortTrackers(g)
	}
	return groups, order
}

func anyOverlap(groups map[trackerKey][]Tracker) bool {
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		reach := g[0].Period.upper()
		for _, t := range g[1:] {
			if t.Period.Start <= reach {
				return true
			}
			reach = max(reach, t.Period.upper())
		}
	}
	return false
}

func sortTrackers(ts []Tracker) {
	slices.SortStableFunc(ts, func(a, b Tracker) int {
		return cmp.Or(
			cmp.Compare(a.Period.Start, b.Period.Start),
			cmp.Compare(a.Period.upper(), b.Period.upper()),
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.Confidence, b.Confidence),
		)
	})
}

func uniqueSorted(xs []int64) []int64 {
	slices.Sort(xs)
	return slices.Compact(xs)
}

func clone(ts []Tracker) []Tracker {
	if ts == nil {
		return nil
	}
	out := make([]Tracker, len(ts))
	copy(out, ts)
	return out
}
