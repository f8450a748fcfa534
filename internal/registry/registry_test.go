package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/testutil"
)

var (
	and = ir.Connector{Execution: ir.ExecutionParallel, Operator: ir.OperatorAnd}
	or  = ir.Connector{Execution: ir.ExecutionSequential, Operator: ir.OperatorOr}
)

func rescueCatalog() []ir.Template {
	return []ir.Template{
		{
			URN:       "urn:rescue-victim",
			Connector: and,
			Children: []ir.ChildRef{
				{URN: "urn:access-victim", Required: true},
				{URN: "urn:triage-victim", Required: false},
			},
		},
		{
			URN:       "urn:access-victim",
			Connector: or,
			Children:  []ir.ChildRef{{URN: "urn:unlock-victim", Required: true}},
		},
		{URN: "urn:unlock-victim", Connector: and, Estimates: ir.Estimates{PreparingMS: 1000, AddressingMS: 4000}},
		{URN: "urn:triage-victim", Connector: and, Estimates: ir.Estimates{AddressingMS: 7500}},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(rescueCatalog(), testutil.NewSequenceIDs(""))
	require.NoError(t, err)
	return r
}

func TestNew_RejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name      string
		templates []ir.Template
		contains  string
		target    error
	}{
		{
			name:      "invalid operator",
			templates: []ir.Template{{URN: "a", Connector: ir.Connector{Execution: ir.ExecutionParallel, Operator: "XOR"}}},
			contains:  "XOR",
			target:    ir.ErrInvalidConnector,
		},
		{
			name:      "unknown child",
			templates: []ir.Template{{URN: "a", Connector: and, Children: []ir.ChildRef{{URN: "missing"}}}},
			contains:  "missing",
			target:    ErrUnknownTemplate,
		},
		{
			name:      "duplicate",
			templates: []ir.Template{{URN: "a", Connector: and}, {URN: "a", Connector: or}},
			contains:  "duplicate template a",
		},
		{
			name:      "empty urn",
			templates: []ir.Template{{Connector: and}},
			contains:  "empty urn",
		},
		{
			name:      "self recursion",
			templates: []ir.Template{{URN: "a", Connector: and, Children: []ir.ChildRef{{URN: "a"}}}},
			contains:  "a -> a",
		},
		{
			name: "indirect recursion",
			templates: []ir.Template{
				{URN: "a", Connector: and, Children: []ir.ChildRef{{URN: "b"}}},
				{URN: "b", Connector: and, Children: []ir.ChildRef{{URN: "a"}}},
			},
			contains: "a -> b -> a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.templates, testutil.NewSequenceIDs(""))
			assert.Nil(t, r)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.contains)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestFindRecursion_DAG(t *testing.T) {
	assert.Empty(t, FindRecursion(rescueCatalog()))
	assert.Empty(t, FindRecursion(nil))
}

func TestCreate_BuildsTemplateTree(t *testing.T) {
	r := newRegistry(t)
	inputs := ir.Params{"victim-id": "v1"}

	root, err := r.Create("urn:rescue-victim", inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, "jag-1", root.ID())
	require.Len(t, root.Children(), 2)
	access, triage := root.Children()[0], root.Children()[1]
	assert.Equal(t, "urn:access-victim", access.URN())
	assert.True(t, access.Required())
	assert.False(t, triage.Required())
	assert.Equal(t, ir.OperatorOr, access.Connector().Operator)

	for _, leaf := range root.Leaves() {
		assert.Equal(t, inputs, leaf.Inputs(), leaf.URN())
	}

	inputs["victim-id"] = "mutated"
	assert.Equal(t, "v1", access.Inputs()["victim-id"])

	assert.InDelta(t, 1.0, root.EstimatedPreparationDuration(), 1e-9)
	assert.InDelta(t, 11.5, root.EstimatedAddressingDuration(), 1e-9)
}

func TestCreate_UnknownTemplate(t *testing.T) {
	r := newRegistry(t)
	n, err := r.Create("urn:nope", nil, nil)
	assert.Nil(t, n)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestCreateFromDescription_RoundTrip(t *testing.T) {
	r := newRegistry(t)
	orig, err := r.Create("urn:rescue-victim", ir.Params{"victim-id": "v1"}, ir.Params{"room": "r2"})
	require.NoError(t, err)

	desc := orig.Describe()
	other, err := New(rescueCatalog(), testutil.NewSequenceIDs("other"))
	require.NoError(t, err)
	rebuilt, err := other.CreateFromDescription(desc)
	require.NoError(t, err)

	assert.Equal(t, desc, rebuilt.Describe())
	assert.Equal(t, orig.EstimatedCompletionDuration(), rebuilt.EstimatedCompletionDuration())
}

func TestCreateFromDescription_ConnectorAndIDs(t *testing.T) {
	r := newRegistry(t)

	desc := ir.Description{
		URN:    "urn:access-victim",
		Inputs: ir.Params{"victim-id": "v9"},
		Children: []ir.Description{
			{ID: "remote-7", URN: "urn:unlock-victim", Required: true, Inputs: ir.Params{"victim-id": "v9"}},
		},
	}
	n, err := r.CreateFromDescription(desc)
	require.NoError(t, err)

	assert.Equal(t, ir.OperatorOr, n.Connector().Operator, "connector from catalog")
	assert.Equal(t, "jag-1", n.ID(), "missing id is generated")
	assert.Equal(t, "remote-7", n.Children()[0].ID())
	assert.True(t, n.Children()[0].Required())
}

func TestCreateFromDescription_UnknownTemplate(t *testing.T) {
	r := newRegistry(t)

	_, err := r.CreateFromDescription(ir.Description{ID: "x", URN: "urn:remote-only"})
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	// a described connector is enough to rebuild a template this side lacks
	n, err := r.CreateFromDescription(ir.Description{ID: "x", URN: "urn:remote-only", Connector: &or})
	require.NoError(t, err)
	assert.Equal(t, "urn:remote-only", n.URN())
}

func TestTemplates_CatalogOrder(t *testing.T) {
	r := newRegistry(t)
	var urns []string
	for _, tpl := range r.Templates() {
		urns = append(urns, tpl.URN)
	}
	assert.Equal(t, []string{"urn:rescue-victim", "urn:access-victim", "urn:unlock-victim", "urn:triage-victim"}, urns)

	tpl, ok := r.Template("urn:rescue-victim")
	require.True(t, ok)
	tpl.Children[0].URN = "changed"
	again, _ := r.Template("urn:rescue-victim")
	assert.Equal(t, "urn:access-victim", again.Children[0].URN)
}
