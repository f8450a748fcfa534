package jag

import (
	"github.com/roach88/jagtrack/internal/interval"
	"github.com/roach88/jagtrack/internal/ledger"
)

// Durations are reported in seconds. -1 means undefined: nothing recorded,
// or every tracker still open.

func seconds(ms int64) float64 {
	if ms < 0 {
		return -1
	}
	return float64(ms) / 1000
}

func coverSeconds(l *ledger.Ledger) float64 {
	return seconds(interval.TotalDuration(l.Cover()))
}

func splitSeconds(l *ledger.Ledger) float64 {
	return seconds(interval.TotalDuration(l.UniqueSplit()))
}

// PreparingDuration is the covered preparing time over all entities.
func (n *Node) PreparingDuration() float64 { return coverSeconds(n.Preparing()) }

// AddressingDuration is the covered addressing time over all entities.
func (n *Node) AddressingDuration() float64 { return coverSeconds(n.Addressing()) }

// PreparingNonOverlappingDuration counts simultaneous preparation of the
// same entity on several sub-activities once per contribution.
func (n *Node) PreparingNonOverlappingDuration() float64 { return splitSeconds(n.Preparing()) }

// AddressingNonOverlappingDuration is the addressing counterpart of
// PreparingNonOverlappingDuration.
func (n *Node) AddressingNonOverlappingDuration() float64 { return splitSeconds(n.Addressing()) }

// CompletionDuration is preparing plus addressing time, -1 if either is.
func (n *Node) CompletionDuration() float64 {
	return sumDefined(n.PreparingDuration(), n.AddressingDuration())
}

// EstimatedPreparationDuration sums leaf estimates.
func (n *Node) EstimatedPreparationDuration() float64 {
	if n.IsLeaf() {
		return seconds(n.estimates.PreparingMS)
	}
	var total float64
	for _, c := range n.children {
		total += c.EstimatedPreparationDuration()
	}
	return total
}

// EstimatedAddressingDuration sums leaf estimates.
func (n *Node) EstimatedAddressingDuration() float64 {
	if n.IsLeaf() {
		return seconds(n.estimates.AddressingMS)
	}
	var total float64
	for _, c := range n.children {
		total += c.EstimatedAddressingDuration()
	}
	return total
}

// EstimatedCompletionDuration is estimated preparation plus addressing.
func (n *Node) EstimatedCompletionDuration() float64 {
	return n.EstimatedPreparationDuration() + n.EstimatedAddressingDuration()
}

func sumDefined(a, b float64) float64 {
	if a < 0 || b < 0 {
		return -1
	}
	return a + b
}
