// Package metrics derives team-coordination measures from a merged
// activity tree.
//
// All values are in seconds or are ratios; -1 means undefined.
package metrics

import (
	"github.com/roach88/jagtrack/internal/interval"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
)

// Summary holds the measures for one activity.
type Summary struct {
	// ActiveDuration is the calendar time during which anyone prepared
	// for or addressed the activity.
	ActiveDuration float64 `json:"active_duration"`
	// PersonTime counts each participant's preparing and addressing time
	// separately, including simultaneous work on several sub-activities.
	PersonTime float64 `json:"person_time"`
	// RedundancyRatio is PersonTime over ActiveDuration.
	RedundancyRatio float64 `json:"redundancy_ratio"`
	// JointActivityEfficiency is the estimated completion duration over
	// ActiveDuration.
	JointActivityEfficiency float64 `json:"joint_activity_efficiency"`
}

// Compute measures n.
func Compute(n *jag.Node) Summary {
	active := activeDuration(n)
	person := ratioOperand(
		seconds(interval.TotalDuration(n.Preparing().UniqueSplit())),
		seconds(interval.TotalDuration(n.Addressing().UniqueSplit())),
	)
	return Summary{
		ActiveDuration:          active,
		PersonTime:              person,
		RedundancyRatio:         ratio(person, active),
		JointActivityEfficiency: ratio(n.EstimatedCompletionDuration(), active),
	}
}

// Payload builds the outbound summary for a merged tree.
func Payload(merged *jag.Node, instances map[string]string) *ir.SummaryPayload {
	s := Compute(merged)
	return &ir.SummaryPayload{
		Identity:                merged.Identity(),
		ObserverInstances:       instances,
		ActiveDuration:          s.ActiveDuration,
		JointActivityEfficiency: s.JointActivityEfficiency,
		RedundancyRatio:         s.RedundancyRatio,
	}
}

// activeDuration covers preparing and addressing trackers of every
// participant as if they were one.
func activeDuration(n *jag.Node) float64 {
	var all []interval.Tracker
	for _, t := range append(n.Preparing().Trackers(), n.Addressing().Trackers()...) {
		all = append(all, interval.Tracker{Confidence: 1, Period: t.Period, Contributors: 1})
	}
	return seconds(interval.TotalDuration(interval.Cover(all)))
}

func seconds(ms int64) float64 {
	if ms < 0 {
		return -1
	}
	return float64(ms) / 1000
}

// ratioOperand sums the defined parts; -1 if none is defined.
func ratioOperand(parts ...float64) float64 {
	total, defined := 0.0, false
	for _, p := range parts {
		if p >= 0 {
			total += p
			defined = true
		}
	}
	if !defined {
		return -1
	}
	return total
}

func ratio(num, den float64) float64 {
	if num < 0 || den <= 0 {
		return -1
	}
	return num / den
}
