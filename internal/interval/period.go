// Package interval implements the time-interval algebra used for activity
// accounting.
//
// A Period is a closed millisecond range that may still be open ("ongoing").
// A Tracker tags a Period with the subject that was active during it and the
// confidence of the report. Two reductions fold overlapping trackers:
//
//   - Cover merges overlapping trackers of the same subject and confidence
//     into their union. Totals computed from a covered set are calendar time.
//   - UniqueSplit partitions overlapping trackers into disjoint segments,
//     each carrying the number of trackers that covered it. Totals computed
//     from a split set are person time.
//
// All times are elapsed milliseconds. Durations are -1 when undefined,
// never zero.
package interval

import (
	"errors"
	"fmt"
)

// Ongoing is the End sentinel of a period that has not been closed yet.
const Ongoing int64 = -1

// ErrMalformedPeriod is returned when a period would have a negative start
// or an end before its start.
var ErrMalformedPeriod = errors.New("malformed period")

// Period is a closed range [Start, End] in milliseconds.
// End is Ongoing while the period is open.
type Period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewPeriod creates a closed period.
func NewPeriod(start, end int64) (Period, error) {
	if start < 0 {
		return Period{}, fmt.Errorf("%w: negative start %d", ErrMalformedPeriod, start)
	}
	if end < start {
		return Period{}, fmt.Errorf("%w: end %d before start %d", ErrMalformedPeriod, end, start)
	}
	return Period{Start: start, End: end}, nil
}

// OpenPeriod creates an ongoing period starting at start.
func OpenPeriod(start int64) (Period, error) {
	if start < 0 {
		return Period{}, fmt.Errorf("%w: negative start %d", ErrMalformedPeriod, start)
	}
	return Period{Start: start, End: Ongoing}, nil
}

// IsOngoing reports whether the period is still open.
func (p Period) IsOngoing() bool {
	return p.End == Ongoing
}

// Close sets the end of an open period.
// Closing an already closed period only extends it.
func (p *Period) Close(end int64) error {
	if end < p.Start {
		return fmt.Errorf("%w: end %d before start %d", ErrMalformedPeriod, end, p.Start)
	}
	if !p.IsOngoing() && end < p.End {
		return fmt.Errorf("%w: cannot shrink end %d to %d", ErrMalformedPeriod, p.End, end)
	}
	p.End = end
	return nil
}

// Duration returns End-Start, or -1 while the period is open.
func (p Period) Duration() int64 {
	if p.IsOngoing() {
		return -1
	}
	return p.End - p.Start
}

// upper returns the end used for ordering; open periods sort last.
func (p Period) upper() int64 {
	if p.IsOngoing() {
		return maxTime
	}
	return p.End
}

const maxTime = int64(^uint64(0) >> 1)

func (p Period) String() string {
	if p.IsOngoing() {
		return fmt.Sprintf("[%d, ...)", p.Start)
	}
	return fmt.Sprintf("[%d, %d]", p.Start, p.End)
}
