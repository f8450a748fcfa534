package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
)

func leaf(t *testing.T, id, urn string, inputs ir.Params) *jag.Node {
	t.Helper()
	n, err := jag.New(id, ir.Identity{URN: urn, Inputs: inputs}, ir.Connector{Execution: ir.ExecutionParallel, Operator: ir.OperatorAnd})
	require.NoError(t, err)
	return n
}

func activity(cat ir.Category, r ir.ActivityReport, at int64) ir.Inbound {
	return ir.Inbound{Category: cat, Observer: "obs", ElapsedMS: at, Activity: &r}
}

func TestTargets(t *testing.T) {
	n := leaf(t, "jag-1", "urn:unlock-victim", ir.Params{"victim-id": "v1", "room": "r2"})

	tests := []struct {
		name   string
		report ir.ActivityReport
		want   bool
	}{
		{"by id", ir.ActivityReport{InstanceID: "jag-1"}, true},
		{"other id", ir.ActivityReport{InstanceID: "jag-2", URN: "urn:unlock-victim"}, false},
		{"urn and input subset", ir.ActivityReport{URN: "urn:unlock-victim", Inputs: ir.Params{"victim-id": "v1"}}, true},
		{"urn only", ir.ActivityReport{URN: "urn:unlock-victim"}, true},
		{"input mismatch", ir.ActivityReport{URN: "urn:unlock-victim", Inputs: ir.Params{"victim-id": "v2"}}, false},
		{"urn mismatch", ir.ActivityReport{URN: "urn:triage-victim"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Targets(n, activity(ir.CategoryAddressing, tt.report, 0)))
		})
	}

	assert.False(t, Targets(n, ir.Inbound{Category: ir.CategorySummary, Summary: &ir.SummaryRequest{}}))
}

func TestGeneric_AppliesUpdates(t *testing.T) {
	table := Generic("urn:unlock-victim")
	n := leaf(t, "jag-1", "urn:unlock-victim", nil)
	report := ir.ActivityReport{InstanceID: "jag-1", Subject: "p1", Confidence: 1}

	for _, cat := range []ir.Category{ir.CategoryAwareness, ir.CategoryPreparing, ir.CategoryAddressing} {
		a, ok := table.Lookup("urn:unlock-victim", cat)
		require.True(t, ok, cat)
		require.NoError(t, a(n, activity(cat, report, 100)))
	}
	assert.True(t, n.Awareness().Knows("p1"))
	assert.True(t, n.Preparing().Knows("p1"))
	assert.True(t, n.Addressing().Knows("p1"))

	complete, ok := table.Lookup("urn:unlock-victim", ir.CategoryCompletion)
	require.True(t, ok)
	require.NoError(t, complete(n, ir.Inbound{
		Category:   ir.CategoryCompletion,
		Observer:   "obs",
		ElapsedMS:  200,
		Completion: &ir.CompletionReport{InstanceID: "jag-1", IsComplete: true},
	}))
	assert.True(t, n.IsComplete())
	assert.Equal(t, int64(200), n.CompletionTime())
}

func TestGeneric_IgnoresOtherNodes(t *testing.T) {
	n := leaf(t, "jag-1", "urn:unlock-victim", nil)
	err := Addressing(n, activity(ir.CategoryAddressing, ir.ActivityReport{InstanceID: "jag-9", Subject: "p1", Confidence: 1}, 0))
	require.NoError(t, err)
	assert.False(t, n.Addressing().Knows("p1"))
}

func TestCompletion_RefusesInternalNodes(t *testing.T) {
	parent := leaf(t, "jag-1", "urn:access-victim", nil)
	parent.AddChild(leaf(t, "jag-2", "urn:unlock-victim", nil), true)

	err := Completion(parent, ir.Inbound{
		Category:   ir.CategoryCompletion,
		Observer:   "obs",
		Completion: &ir.CompletionReport{InstanceID: "jag-1", IsComplete: true},
	})
	assert.Error(t, err)
	assert.False(t, parent.IsComplete())
}

func TestAdapter_PropagatesLedgerErrors(t *testing.T) {
	n := leaf(t, "jag-1", "urn:unlock-victim", nil)
	report := ir.ActivityReport{InstanceID: "jag-1", Subject: "p1", Confidence: 1}
	require.NoError(t, Addressing(n, activity(ir.CategoryAddressing, report, 500)))
	assert.Error(t, Addressing(n, activity(ir.CategoryAddressing, report, 100)))
}

func TestTable_RegisterLookupMerge(t *testing.T) {
	base := Generic("urn:a")
	_, ok := base.Lookup("urn:a", ir.CategoryDiscovered)
	assert.False(t, ok)
	_, ok = base.Lookup("urn:b", ir.CategoryAddressing)
	assert.False(t, ok)

	var called bool
	custom := Table{}
	custom.Register("urn:a", ir.CategoryAddressing, func(*jag.Node, ir.Inbound) error {
		called = true
		return nil
	})

	merged := base.Merge(custom)
	a, ok := merged.Lookup("urn:a", ir.CategoryAddressing)
	require.True(t, ok)
	require.NoError(t, a(nil, ir.Inbound{}))
	assert.True(t, called)

	_, ok = merged.Lookup("urn:a", ir.CategoryPreparing)
	assert.True(t, ok, "base adapters survive")
	base2, _ := base.Lookup("urn:a", ir.CategoryAddressing)
	require.NoError(t, base2(leaf(t, "x", "urn:a", nil), ir.Inbound{}))
}
